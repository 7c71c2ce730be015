package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/service/eligibility"
)

// LoadSnapshots assembles the active buyer book: every active buyer
// with its service configs and zip coverage. The eligibility refresher
// reloads this on an interval to keep the fallback registry warm.
func (r *BuyerRepository) LoadSnapshots(ctx context.Context) ([]*eligibility.Snapshot, error) {
	snaps, byID, err := r.loadActiveBuyers(ctx)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return snaps, nil
	}

	if err := r.attachServiceConfigs(ctx, byID); err != nil {
		return nil, err
	}
	if err := r.attachZipCoverage(ctx, byID); err != nil {
		return nil, err
	}

	return snaps, nil
}

func (r *BuyerRepository) loadActiveBuyers(ctx context.Context) ([]*eligibility.Snapshot, map[uuid.UUID]*eligibility.Snapshot, error) {
	query := `
		SELECT ` + buyerColumns + `
		FROM buyers
		WHERE active
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query active buyers: %w", err)
	}
	defer rows.Close()

	var snaps []*eligibility.Snapshot
	byID := make(map[uuid.UUID]*eligibility.Snapshot)
	for rows.Next() {
		b, err := scanBuyer(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan buyer: %w", err)
		}
		snap := &eligibility.Snapshot{Buyer: b}
		snaps = append(snaps, snap)
		byID[b.ID] = snap
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return snaps, byID, nil
}

func (r *BuyerRepository) attachServiceConfigs(ctx context.Context, byID map[uuid.UUID]*eligibility.Snapshot) error {
	query := `
		SELECT ` + serviceConfigColumns + `
		FROM buyer_service_configs
		WHERE active AND buyer_id IN (SELECT id FROM buyers WHERE active)
		ORDER BY buyer_id, service_type_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query service configs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanServiceConfig(rows)
		if err != nil {
			return fmt.Errorf("failed to scan service config: %w", err)
		}
		if snap, ok := byID[c.BuyerID]; ok {
			snap.Configs = append(snap.Configs, c)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}

	return nil
}

func (r *BuyerRepository) attachZipCoverage(ctx context.Context, byID map[uuid.UUID]*eligibility.Snapshot) error {
	query := `
		SELECT id, buyer_id, service_type_id, zip_code, priority, active,
			min_bid, max_bid, max_leads_per_day,
			created_at, updated_at
		FROM buyer_service_zip_codes
		WHERE active AND buyer_id IN (SELECT id FROM buyers WHERE active)
		ORDER BY priority ASC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query zip coverage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		z, err := scanZipCoverage(rows)
		if err != nil {
			return fmt.Errorf("failed to scan zip coverage: %w", err)
		}
		if snap, ok := byID[z.BuyerID]; ok {
			snap.Zones = append(snap.Zones, z)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}

	return nil
}
