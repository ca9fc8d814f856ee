package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	run := &domain.ReplenishmentRun{Name: "New", State: domain.RunStateDraft, Status: domain.StatusActive}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Transfers.CreateTransfer(ctx, &domain.TransferBatch{RunID: run.ID, IdempotencyKey: "k1"}); err != nil {
			return err
		}
		stored, err := repos.Runs.GetRun(ctx, run.ID)
		if err != nil {
			return err
		}
		stored.State = domain.RunStateGenerated
		if err := repos.Runs.UpdateRun(ctx, stored); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	transfers, _ := store.ListTransfersByRun(ctx, run.ID)
	if len(transfers) != 0 {
		t.Errorf("Expected transfers to be rolled back, got %d", len(transfers))
	}
	stored, _ := store.GetRun(ctx, run.ID)
	if stored.State != domain.RunStateDraft {
		t.Errorf("Expected run state to be rolled back, got %s", stored.State)
	}

	// the key is free again after rollback
	if _, err := store.CreateTransfer(ctx, &domain.TransferBatch{RunID: run.ID, IdempotencyKey: "k1"}); err != nil {
		t.Errorf("Expected key to be reusable after rollback, got %v", err)
	}
}

func TestWithinTxHidesUncommittedWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	run := &domain.ReplenishmentRun{Name: "New", State: domain.RunStateDraft, Status: domain.StatusActive}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}

	written := make(chan struct{})
	checked := make(chan struct{})
	boom := errors.New("boom")
	done := make(chan error, 1)
	go func() {
		done <- store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			if _, err := repos.Transfers.CreateTransfer(ctx, &domain.TransferBatch{RunID: run.ID, IdempotencyKey: "k1"}); err != nil {
				return err
			}
			stored, err := repos.Runs.GetRun(ctx, run.ID)
			if err != nil {
				return err
			}
			stored.State = domain.RunStateGenerated
			if err := repos.Runs.UpdateRun(ctx, stored); err != nil {
				return err
			}
			close(written)
			<-checked
			return boom
		})
	}()

	<-written
	outside := store.Repositories()
	stored, err := outside.Runs.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("Failed to read run: %v", err)
	}
	if stored.State != domain.RunStateDraft {
		t.Errorf("Expected draft while the transaction is open, got %s", stored.State)
	}
	transfers, _ := outside.Transfers.ListTransfersByRun(ctx, run.ID)
	if len(transfers) != 0 {
		t.Errorf("Expected no visible transfers while the transaction is open, got %d", len(transfers))
	}
	close(checked)

	if err := <-done; !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	stored, _ = store.GetRun(ctx, run.ID)
	if stored.State != domain.RunStateDraft {
		t.Errorf("Expected draft after rollback, got %s", stored.State)
	}
}

func TestWithinTxCommitPublishesWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	var runID int64
	err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		run := &domain.ReplenishmentRun{Name: "New", State: domain.RunStateDraft, Status: domain.StatusActive}
		if err := repos.Runs.CreateRun(ctx, run); err != nil {
			return err
		}
		runID = run.ID
		_, err := repos.Transfers.CreateTransfer(ctx, &domain.TransferBatch{RunID: run.ID, IdempotencyKey: "k1"})
		return err
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, err := store.GetRun(ctx, runID); err != nil {
		t.Errorf("Expected committed run to be visible, got %v", err)
	}
	transfers, _ := store.ListTransfersByRun(ctx, runID)
	if len(transfers) != 1 {
		t.Errorf("Expected 1 committed transfer, got %d", len(transfers))
	}
	if _, err := store.CreateTransfer(ctx, &domain.TransferBatch{RunID: runID, IdempotencyKey: "k1"}); !errors.Is(err, domain.ErrDuplicateTransfer) {
		t.Errorf("Expected ErrDuplicateTransfer after commit, got %v", err)
	}
}

func TestCreateTransferRejectsDuplicateKey(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.clock = func() time.Time { return time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC) }

	batch := &domain.TransferBatch{RunID: 1, IdempotencyKey: "run/1/warehouse/2"}
	id, err := store.CreateTransfer(ctx, batch)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if batch.Reference != "INT/202403/00001" || id != batch.ID {
		t.Errorf("Unexpected reference %s id %d", batch.Reference, id)
	}

	if _, err := store.CreateTransfer(ctx, &domain.TransferBatch{RunID: 1, IdempotencyKey: "run/1/warehouse/2"}); !errors.Is(err, domain.ErrDuplicateTransfer) {
		t.Errorf("Expected ErrDuplicateTransfer, got %v", err)
	}
}

func TestReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	region := &domain.Region{Name: "North", WarehouseIDs: []int64{1, 2}, Status: domain.StatusActive}
	if err := store.CreateRegion(ctx, region); err != nil {
		t.Fatalf("Failed to create region: %v", err)
	}

	got, _ := store.GetRegion(ctx, region.ID)
	got.WarehouseIDs[0] = 99

	again, _ := store.GetRegion(ctx, region.ID)
	if again.WarehouseIDs[0] != 1 {
		t.Errorf("Expected stored region to be unaffected, got %v", again.WarehouseIDs)
	}
}

func TestFindActiveSkipsArchived(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	rule := &domain.FormulaRule{ClinicID: 1, ProductID: 2, Status: domain.StatusArchived}
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("Failed to create rule: %v", err)
	}

	active, err := store.FindActive(ctx, 1, 2)
	if err != nil || active != nil {
		t.Errorf("Expected no active rule, got %+v err=%v", active, err)
	}
	byPair, err := store.FindByPair(ctx, 1, 2)
	if err != nil || byPair == nil {
		t.Errorf("Expected archived rule by pair, got %+v err=%v", byPair, err)
	}
	if err := store.CreateRule(ctx, &domain.FormulaRule{ClinicID: 1, ProductID: 2}); !domain.IsValidationError(err) {
		t.Errorf("Expected ValidationError for duplicate pair, got %v", err)
	}
}
