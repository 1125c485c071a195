package conversation

// Stage is an onboarding stage. Completion is not a stage: a finished user
// is in the Active phase.
type Stage string

const (
	StageNew                Stage = "NEW"
	StageAwaitingLink       Stage = "AWAITING_LINK"
	StageLinked             Stage = "LINKED"
	StageCollectingPromo    Stage = "COLLECTING_PROMO_PREF"
	StageCollectingSchedule Stage = "COLLECTING_SCHEDULE"
	StageCollectingStyle    Stage = "COLLECTING_STYLE"
)

// Step is the compose/reply sub-step of an onboarded user. StepIdle is the
// steady state.
type Step string

const (
	StepIdle            Step = ""
	StepComposingTo     Step = "COMPOSING_TO"
	StepComposingBody   Step = "COMPOSING_BODY"
	StepConfirmingDraft Step = "CONFIRMING_DRAFT"
)

// Phase is either Onboarding or Active. A Step only exists inside Active, so
// a step cannot be set while onboarding is incomplete.
type Phase interface {
	isPhase()
	// Name is the label used in logs and metrics.
	Name() string
}

type Onboarding struct {
	Stage Stage
}

type Active struct {
	Step Step
}

func (Onboarding) isPhase() {}
func (Active) isPhase()     {}

func (p Onboarding) Name() string { return string(p.Stage) }

func (p Active) Name() string {
	if p.Step == StepIdle {
		return "COMPLETED"
	}
	return "COMPLETED/" + string(p.Step)
}

func samePhase(a, b Phase) bool {
	return a.Name() == b.Name()
}
