package cli

import (
	"context"
	"io"
	"time"

	"github.com/m-mizutani/fireconf"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/service/approval"
	"github.com/secmon-lab/medic/pkg/usecase"
)

// DefineFirestoreIndexes exposes defineFirestoreIndexes for testing
func DefineFirestoreIndexes(prefix string) *fireconf.Config {
	return defineFirestoreIndexes(prefix)
}

// ReadAlertDataForTest exposes readAlertData for testing
func ReadAlertDataForTest(inputFile string) ([]byte, error) {
	return readAlertData(inputFile)
}

// RunAlertForTest exposes runAlert for testing
func RunAlertForTest(ctx context.Context, w io.Writer, uc *usecase.UseCases, body []byte) error {
	return runAlert(ctx, w, uc, body)
}

// SignApprovalForTest exposes signApproval for testing
func SignApprovalForTest(w io.Writer, signer *approval.Signer, baseURL string, id types.IncidentID, action types.ApprovalAction, actor string, now time.Time) error {
	return signApproval(w, signer, baseURL, id, action, actor, now)
}
