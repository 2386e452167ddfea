package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"
)

const TopicDoctorCreated = "directory.doctor.created.v1"

// TemplateEnsurer creates an empty availability template if none exists.
type TemplateEnsurer interface {
	EnsureTemplate(ctx context.Context, doctorID string) (bool, error)
}

type doctorCreated struct {
	DoctorID string `json:"doctor_id"`
}

// DoctorCreated gives every newly registered doctor an empty weekly template.
func DoctorCreated(templates TemplateEnsurer, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt doctorCreated
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return err
		}
		doctorID := strings.TrimSpace(evt.DoctorID)
		if doctorID == "" {
			return errors.New("doctor.created event without doctor_id")
		}
		created, err := templates.EnsureTemplate(ctx, doctorID)
		if err != nil {
			return err
		}
		if created {
			logger.Info("availability template created", "doctor_id", doctorID)
		}
		return nil
	}
}
