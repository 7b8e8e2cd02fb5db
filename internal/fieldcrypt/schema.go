package fieldcrypt

import (
	apperrors "github.com/clinicbase/phivault/internal/errors"
)

// RecordKind identifies a protected record category. Each kind maps to a data
// key scope and carries its own field schema.
type RecordKind string

const (
	RecordCaseHistory   RecordKind = "case_history"
	RecordMentalStatus  RecordKind = "mental_status"
	RecordQuestionnaire RecordKind = "questionnaire"
	RecordAppointment   RecordKind = "appointment"
)

// ErrUnknownRecordKind indicates a record kind with no registered schema.
var ErrUnknownRecordKind = apperrors.Wrap(apperrors.ErrInvalidInput, "unknown record kind")

// Schema statically couples a record kind to its sensitive-field list and the
// subset of those fields that get blind indexes. Field lists are compile-time
// constants rather than runtime string sets, so a record shape and its
// encryption policy cannot drift apart.
type Schema struct {
	Kind       RecordKind
	Sensitive  []string
	Searchable []string
}

// DataType returns the key-management data type this schema's data key protects.
func (s Schema) DataType() string {
	return string(s.Kind)
}

// IsSearchable reports whether the field gets a blind index.
func (s Schema) IsSearchable(field string) bool {
	for _, f := range s.Searchable {
		if f == field {
			return true
		}
	}
	return false
}

var caseHistorySchema = Schema{
	Kind: RecordCaseHistory,
	Sensitive: []string{
		"identification_name",
		"identification_father_husband_name",
		"identification_address",
		"identification_source_of_referral",
		"identification_reason_for_referral",
		"informant_name",
		"informant_education",
		"informant_occupation",
		"chief_complaints",
		"family_history_psychiatric_illness",
		"family_history_home_atmosphere",
		"personal_history_birth_date",
		"personal_history_health_childhood",
		"menstrual_related_symptoms",
		"sexual_reaction_attitude",
		"marital_adjustment",
		"forensic_history",
		"medical_history_nature_illness",
		"medical_history_medication",
		"medical_history_hospitalization",
		"premorbid_personality_mood",
		"present_illness_evolution_symptoms",
		"present_illness_treatment_history",
		"additional_information",
	},
	Searchable: []string{
		"identification_name",
		"chief_complaints",
	},
}

var mentalStatusSchema = Schema{
	Kind: RecordMentalStatus,
	Sensitive: []string{
		"general_appearance_appearance",
		"attitude",
		"motor_behavior",
		"speech_intensity_tone",
		"cognitive_attention_concentration",
		"cognitive_memory_recent",
		"mood_affect_subjective",
		"mood_affect_objective",
		"thought_stream",
		"thought_content_ideas_suicide",
		"thought_content_delusions_types",
		"perceptual_description",
		"judgement_social",
		"insight",
		"insight_details",
		"verbatim_report",
	},
	// No searchable fields: everything here is too sensitive to index.
	Searchable: nil,
}

var questionnaireSchema = Schema{
	Kind: RecordQuestionnaire,
	Sensitive: []string{
		"answer_text",
		"additional_notes",
	},
	Searchable: nil,
}

var appointmentSchema = Schema{
	Kind: RecordAppointment,
	Sensitive: []string{
		"notes",
	},
	Searchable: nil,
}

var schemas = map[RecordKind]Schema{
	RecordCaseHistory:   caseHistorySchema,
	RecordMentalStatus:  mentalStatusSchema,
	RecordQuestionnaire: questionnaireSchema,
	RecordAppointment:   appointmentSchema,
}

// SchemaFor returns the schema registered for a record kind.
func SchemaFor(kind RecordKind) (Schema, error) {
	schema, ok := schemas[kind]
	if !ok {
		return Schema{}, apperrors.Wrapf(ErrUnknownRecordKind, "%q", kind)
	}
	return schema, nil
}
