package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/saludcampo/offlinesync/internal/logging"
	"github.com/saludcampo/offlinesync/internal/models"
	"github.com/saludcampo/offlinesync/internal/telemetry"
)

// AuditCollection is the remote table that receives audit events.
const AuditCollection = "tbl_eventos_sync"

// AuditAction classifies an audit event.
type AuditAction string

const (
	AuditCreate             AuditAction = "CREATE"
	AuditUpdate             AuditAction = "UPDATE"
	AuditDelete             AuditAction = "DELETE"
	AuditLink               AuditAction = "LINK"
	AuditUnlink             AuditAction = "UNLINK"
	AuditCloseAlert         AuditAction = "CLOSE_ALERT"
	AuditCancelAppointment  AuditAction = "CANCEL_APPOINTMENT"
	AuditConfirmAppointment AuditAction = "CONFIRM_APPOINTMENT"
)

// AuditEvent describes a change made to a remote collection.
type AuditEvent struct {
	Collection  string
	Action      AuditAction
	RecordID    string
	Description string
	Before      models.Payload
	After       models.Payload
}

// Auditor writes audit events to the remote store. An event the remote
// store rejects is queued like any other offline write. A nil *Auditor
// records nothing.
type Auditor struct {
	remote      RemoteStore
	queue       PendingQueue
	actor       string
	clock       func() time.Time
	instruments *telemetry.Instruments
}

// NewAuditor creates an Auditor. actor identifies who made the changes and
// may be empty. inst may be nil.
func NewAuditor(remote RemoteStore, queue PendingQueue, actor string, inst *telemetry.Instruments) *Auditor {
	return &Auditor{
		remote:      remote,
		queue:       queue,
		actor:       actor,
		clock:       time.Now,
		instruments: inst,
	}
}

// Created records the creation of record in collection.
func (a *Auditor) Created(ctx context.Context, collection string, record models.Payload) {
	a.Record(ctx, AuditEvent{
		Collection:  collection,
		Action:      AuditCreate,
		RecordID:    recordID(record),
		Description: "New record created in " + collection,
		After:       record,
	})
}

// Record delivers ev. Failures are logged, never returned: an audit event
// must not fail the write it describes. Events about the audit collection
// itself are ignored.
func (a *Auditor) Record(ctx context.Context, ev AuditEvent) {
	if a == nil || ev.Collection == AuditCollection {
		return
	}

	row := a.row(ev)
	err := a.remote.Insert(ctx, AuditCollection, row)
	if err == nil {
		logging.Debug("Audit event recorded", map[string]interface{}{
			"collection": ev.Collection,
			"action":     string(ev.Action),
		})
		return
	}

	logging.Warn("Audit event not delivered, saving offline", map[string]interface{}{
		"collection": ev.Collection,
		"action":     string(ev.Action),
		"cause":      err.Error(),
	})
	local := context.WithoutCancel(ctx)
	if _, err := a.queue.Enqueue(local, AuditCollection, row); err != nil {
		logging.Error("Failed to save audit event", err, map[string]interface{}{
			"collection": ev.Collection,
			"action":     string(ev.Action),
		})
		return
	}
	a.instruments.RecordPending(local, 1)
}

func (a *Auditor) row(ev AuditEvent) models.Payload {
	row := models.Payload{
		"tabla":       ev.Collection,
		"accion":      string(ev.Action),
		"descripcion": ev.Description,
		"timestamp":   a.clock().UTC().Format(time.RFC3339Nano),
	}
	if ev.RecordID != "" {
		row["registro_id"] = ev.RecordID
	}
	if ev.Before != nil {
		row["datos_anteriores"] = map[string]any(ev.Before.Clone())
	}
	if ev.After != nil {
		row["datos_nuevos"] = map[string]any(ev.After.Clone())
	}
	if a.actor != "" {
		row["usuario_id"] = a.actor
	}
	return row
}

// recordID returns the record's "id" field, if it has one.
func recordID(record models.Payload) string {
	v, ok := record["id"]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
