package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// ErrInvalidPayload is returned when an externally sourced payload does not
// match its declared shape.
var ErrInvalidPayload = errors.New("invalid payload")

// Channel names a custom event on the window-level bus.
type Channel string

// Custom event channels.
const (
	ChannelNavigation         Channel = "analytics:navigation"
	ChannelDemographics       Channel = "analytics:demographics"
	ChannelContentInteraction Channel = "analytics:content_interaction"
	ChannelFunnelStep         Channel = "analytics:funnel_step"
	ChannelExperimentExposure Channel = "analytics:experiment_exposure"
	ChannelConsentPreference  Channel = "analytics:consent_preference"
	ChannelTutorialStepSelect Channel = "analytics:tutorial_step_selected"
	ChannelTutorialStepToggle Channel = "analytics:tutorial_step_toggled"
	ChannelTutorialProgress   Channel = "analytics:tutorial_progress_bucket"
)

// Payload is a validated custom event detail that maps onto one event.
type Payload interface {
	Event() EventName
	Data() map[string]any
}

// NavigationDetail is published when the SPA path changes.
type NavigationDetail struct {
	Path string `json:"path" validate:"required,max=2048"`
}

// DemographicsDetail is submitted by the attendee survey form. Every field
// is a bucket chosen from a closed list, never free text.
type DemographicsDetail struct {
	AgeBucket      string `json:"ageBucket" validate:"omitempty,oneof=under_18 18_24 25_34 35_44 45_54 55_plus prefer_not"`
	Role           string `json:"role" validate:"omitempty,oneof=student professional creator exhibitor press other"`
	Region         string `json:"region" validate:"omitempty,oneof=local domestic international"`
	AttendanceType string `json:"attendanceType" validate:"omitempty,oneof=in_person online undecided"`
	FirstTime      *bool  `json:"firstTime"`
}

func (DemographicsDetail) Event() EventName { return EventDemographicsSubmitted }
func (d DemographicsDetail) Data() map[string]any {
	out := map[string]any{}
	setString(out, "ageBucket", d.AgeBucket)
	setString(out, "role", d.Role)
	setString(out, "region", d.Region)
	setString(out, "attendanceType", d.AttendanceType)
	if d.FirstTime != nil {
		out["firstTime"] = *d.FirstTime
	}
	return out
}

// ContentInteractionDetail reports an interaction with a content block.
type ContentInteractionDetail struct {
	ContentID string `json:"contentId" validate:"required,token"`
	Action    string `json:"action" validate:"required,oneof=expand collapse open close play view select"`
	SectionID string `json:"sectionId" validate:"omitempty,token"`
}

func (ContentInteractionDetail) Event() EventName { return EventContentInteraction }
func (d ContentInteractionDetail) Data() map[string]any {
	out := map[string]any{"contentId": d.ContentID, "action": d.Action}
	setString(out, "sectionId", d.SectionID)
	return out
}

// FunnelStepDetail reports progress through a conversion funnel.
type FunnelStepDetail struct {
	Funnel    string `json:"funnel" validate:"required,token"`
	Step      string `json:"step" validate:"required,token"`
	StepIndex int    `json:"stepIndex" validate:"gte=0,lte=50"`
}

func (FunnelStepDetail) Event() EventName { return EventFunnelStep }
func (d FunnelStepDetail) Data() map[string]any {
	return map[string]any{"funnel": d.Funnel, "step": d.Step, "stepIndex": d.StepIndex}
}

// ExperimentExposureDetail reports that a variant was rendered.
type ExperimentExposureDetail struct {
	ExperimentID string `json:"experimentId" validate:"required,token"`
	Variant      string `json:"variant" validate:"required,token"`
}

func (ExperimentExposureDetail) Event() EventName { return EventExperimentExposure }
func (d ExperimentExposureDetail) Data() map[string]any {
	return map[string]any{"experimentId": d.ExperimentID, "variant": d.Variant}
}

// ConsentPreferenceDetail is published by the consent UI after a decision.
type ConsentPreferenceDetail struct {
	Source    string `json:"source" validate:"required,oneof=accept_all reject_optional customize"`
	Analytics bool   `json:"analytics"`
	Marketing bool   `json:"marketing"`
}

func (ConsentPreferenceDetail) Event() EventName { return EventConsentPreference }
func (d ConsentPreferenceDetail) Data() map[string]any {
	return map[string]any{"source": d.Source, "analytics": d.Analytics, "marketing": d.Marketing}
}

// TutorialStepSelectedDetail reports a registration tutorial step selection.
type TutorialStepSelectedDetail struct {
	StepID    string `json:"stepId" validate:"required,token"`
	StepIndex int    `json:"stepIndex" validate:"gte=0,lte=50"`
}

func (TutorialStepSelectedDetail) Event() EventName { return EventTutorialStepSelected }
func (d TutorialStepSelectedDetail) Data() map[string]any {
	return map[string]any{"stepId": d.StepID, "stepIndex": d.StepIndex}
}

// TutorialStepToggledDetail reports a tutorial step being expanded or collapsed.
type TutorialStepToggledDetail struct {
	StepID   string `json:"stepId" validate:"required,token"`
	Expanded bool   `json:"expanded"`
}

func (TutorialStepToggledDetail) Event() EventName { return EventTutorialStepToggled }
func (d TutorialStepToggledDetail) Data() map[string]any {
	return map[string]any{"stepId": d.StepID, "expanded": d.Expanded}
}

// TutorialProgressDetail reports coarse tutorial completion.
type TutorialProgressDetail struct {
	ProgressBucket string `json:"progressBucket" validate:"required,oneof=0 25 50 75 100"`
	CompletedSteps int    `json:"completedSteps" validate:"gte=0,lte=50"`
}

func (TutorialProgressDetail) Event() EventName { return EventTutorialProgressBucket }
func (d TutorialProgressDetail) Data() map[string]any {
	return map[string]any{"progressBucket": d.ProgressBucket, "completedSteps": d.CompletedSteps}
}

func setString(m map[string]any, k, v string) {
	if v != "" {
		m[k] = v
	}
}

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-:.]{0,63}$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the custom "token" rule
// registered. The instance caches struct metadata, so it is built once.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("token", func(fl validator.FieldLevel) bool {
			return tokenPattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Decode converts an untrusted detail (a decoded JSON object, raw JSON bytes,
// or an already typed struct) into dst and validates it.
func Decode(detail any, dst any) error {
	var raw []byte
	switch d := detail.(type) {
	case nil:
		return fmt.Errorf("%w: empty detail", ErrInvalidPayload)
	case []byte:
		raw = d
	case json.RawMessage:
		raw = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := Validator().Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// DecodeChannel decodes the detail published on ch into its typed payload.
func DecodeChannel(ch Channel, detail any) (Payload, error) {
	switch ch {
	case ChannelDemographics:
		return decodeAs[DemographicsDetail](detail)
	case ChannelContentInteraction:
		return decodeAs[ContentInteractionDetail](detail)
	case ChannelFunnelStep:
		return decodeAs[FunnelStepDetail](detail)
	case ChannelExperimentExposure:
		return decodeAs[ExperimentExposureDetail](detail)
	case ChannelConsentPreference:
		return decodeAs[ConsentPreferenceDetail](detail)
	case ChannelTutorialStepSelect:
		return decodeAs[TutorialStepSelectedDetail](detail)
	case ChannelTutorialStepToggle:
		return decodeAs[TutorialStepToggledDetail](detail)
	case ChannelTutorialProgress:
		return decodeAs[TutorialProgressDetail](detail)
	default:
		return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidPayload, ch)
	}
}

func decodeAs[T Payload](detail any) (Payload, error) {
	var v T
	if err := Decode(detail, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// PayloadChannels lists the channels that carry event payloads.
func PayloadChannels() []Channel {
	return []Channel{
		ChannelDemographics, ChannelContentInteraction, ChannelFunnelStep,
		ChannelExperimentExposure, ChannelConsentPreference, ChannelTutorialStepSelect,
		ChannelTutorialStepToggle, ChannelTutorialProgress,
	}
}
