package backup

import (
	"context"
	"errors"
	"time"

	"github.com/OldStager01/farm-bi/pkg/models"
)

var (
	ErrRequestFailed   = errors.New("backup request failed")
	ErrInvalidResponse = errors.New("invalid backup response")
)

// Request asks the backup service to capture the database after a close.
type Request struct {
	Reason      string    `json:"reason"`
	Period      string    `json:"period"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewRequest(period models.Period, actor string) Request {
	return Request{
		Reason:      "cierre_mensual",
		Period:      period.String(),
		RequestedBy: actor,
		RequestedAt: time.Now().UTC(),
	}
}

type Requester interface {
	RequestBackup(ctx context.Context, req Request) error
}

// NoopRequester is used when backups are disabled.
type NoopRequester struct{}

func (NoopRequester) RequestBackup(context.Context, Request) error {
	return nil
}
