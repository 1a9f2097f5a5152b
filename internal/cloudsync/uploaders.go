package cloudsync

import (
	"context"
	"fmt"
	"time"

	"pocketledger/internal/amqp"
	"pocketledger/internal/sheets"
)

// LocalUploader sends nothing; only the shadow copy is kept.
type LocalUploader struct{}

func (LocalUploader) Name() string                          { return ProviderLocal }
func (LocalUploader) Upload(context.Context, Payload) error { return nil }

// SnapshotPublisher is satisfied by *amqp.Client.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, msg *amqp.SnapshotMessage) error
}

// AMQPUploader publishes the sealed backup as a snapshot message.
type AMQPUploader struct {
	publisher SnapshotPublisher
}

func NewAMQPUploader(publisher SnapshotPublisher) *AMQPUploader {
	return &AMQPUploader{publisher: publisher}
}

func (u *AMQPUploader) Name() string { return ProviderAMQP }

func (u *AMQPUploader) Upload(ctx context.Context, p Payload) error {
	return u.publisher.PublishSnapshot(ctx, amqp.NewSnapshotMessage(p.Revision, p.Encrypted, p.Data))
}

// SheetsUploader writes the transaction table to a spreadsheet. The sheet
// is a readable report, so it is always rendered from the plaintext.
type SheetsUploader struct {
	writer sheets.TableWriter
	loc    *time.Location
}

func NewSheetsUploader(writer sheets.TableWriter, loc *time.Location) *SheetsUploader {
	return &SheetsUploader{writer: writer, loc: loc}
}

func (u *SheetsUploader) Name() string { return ProviderSheets }

func (u *SheetsUploader) Upload(ctx context.Context, p Payload) error {
	rows := sheets.TransactionRows(p.Snapshot.Transactions, p.Snapshot.Wallets, u.loc)
	if _, err := u.writer.ReplaceTable(ctx, rows); err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}
	return nil
}
