package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Evaluation stores one screening run: the submitted demographics and
// questionnaire answers together with the probability the classifier
// assigned. Rows are written once by the submit pipeline and never updated.
// JSON field names keep the wire contract of the original service.
type Evaluation struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Sex         string         `gorm:"size:1;not null" json:"sexo"`
	Age         int            `gorm:"not null" json:"edad"`
	Responses   datatypes.JSON `gorm:"not null" json:"respuestas"`
	Probability float64        `gorm:"not null" json:"riesgo_estimado"`
	Consent     bool           `gorm:"not null;default:false" json:"acepto_consentimiento"`
	CreatedAt   time.Time      `json:"fecha"`
}

// SetResponses encodes the questionnaire answers into the JSON column.
func (e *Evaluation) SetResponses(responses []bool) error {
	payload, err := json.Marshal(responses)
	if err != nil {
		return err
	}
	e.Responses = datatypes.JSON(payload)
	return nil
}

// ResponseValues decodes the stored questionnaire answers.
func (e *Evaluation) ResponseValues() ([]bool, error) {
	var responses []bool
	if err := json.Unmarshal(e.Responses, &responses); err != nil {
		return nil, err
	}
	return responses, nil
}
