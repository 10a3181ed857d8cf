package archive_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/medic/pkg/adapter/storage"
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/model/remediation"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/service/archive"
	"github.com/secmon-lab/medic/pkg/utils/clock"
)

func TestSaveAndLoad(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	c, _ := clock.Fixed(now)
	ctx := clock.With(context.Background(), c)

	client := storage.NewMemoryClient()
	svc := archive.New(client, archive.WithPrefix("prod/"))

	inc := incident.New(&alert.Normalized{
		AlertName: "DiskFull",
		Target:    "web-1",
		Project:   "shop",
		Severity:  types.SeverityCritical,
	}, now)
	inc.Result = &remediation.Result{Success: true, Log: "PLAY RECAP ok=3", ExitCode: 0}

	gt.NoError(t, svc.SaveExecution(ctx, inc)).Required()
	gt.Equal(t, client.ContentType("prod/executions/"+inc.ID.String()+".json"), "application/json")

	record, err := svc.LoadExecution(ctx, inc.ID)
	gt.NoError(t, err).Required()
	gt.Equal(t, record.Incident.ID, inc.ID)
	gt.Equal(t, record.Incident.Result.Log, "PLAY RECAP ok=3")
	gt.True(t, record.ArchivedAt.Equal(now))
}

func TestSaveWithoutResult(t *testing.T) {
	svc := archive.New(storage.NewMemoryClient())
	inc := incident.New(&alert.Normalized{AlertName: "a", Target: "t"}, time.Now())

	err := svc.SaveExecution(context.Background(), inc)
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, errs.TagValidation))
}

func TestLoadMissing(t *testing.T) {
	svc := archive.New(storage.NewMemoryClient())
	_, err := svc.LoadExecution(context.Background(), types.NewIncidentID())
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, errs.TagNotFound))
}
