package cron

import (
	"context"
	"fmt"
	"log"
	"time"

	"socialins-backend/internal/database"
	"socialins-backend/pkg/insurance"
)

// How long a period may sit in draft before reminders go out.
const draftReminderAge = 3 * 24 * time.Hour

// StartNotifier launches a background goroutine that runs once per day
// (and once immediately) to remind users of periods stuck in draft with
// required uploads still missing.
func StartNotifier(db database.Service) {
	go func() {
		runCycle(db)

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			runCycle(db)
		}
	}()

	log.Println("[cron] draft-period notifier started – runs every 24 h")
}

// runCycle finds stale draft periods, checks which required combinations
// are still missing, and inserts a notification for every user assigned
// to the period's tenant. Notifications are de-duplicated by
// (user_id, entity_type, entity_id) on the same day.
func runCycle(db database.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool := db.GetPool()

	rows, err := pool.Query(ctx, `
		SELECT p.id, p.label, t.name
		FROM periods p
		JOIN tenants t ON t.id = p.tenant_id
		WHERE p.status = 'draft'
		  AND p.created_at <= NOW() - $1::interval
	`, fmt.Sprintf("%d hours", int(draftReminderAge.Hours())))
	if err != nil {
		log.Printf("[cron] error querying draft periods: %v", err)
		return
	}
	defer rows.Close()

	type stalePeriod struct {
		ID         string
		Label      string
		TenantName string
	}

	var stale []stalePeriod
	for rows.Next() {
		var p stalePeriod
		if err := rows.Scan(&p.ID, &p.Label, &p.TenantName); err != nil {
			log.Printf("[cron] scan error: %v", err)
			continue
		}
		stale = append(stale, p)
	}

	if len(stale) == 0 {
		log.Println("[cron] no stale draft periods found")
		return
	}

	inserted := 0
	today := time.Now().Format("2006-01-02")

	for _, p := range stale {
		missing, err := missingFor(ctx, db, p.ID)
		if err != nil {
			log.Printf("[cron] error checking completeness of period %s: %v", p.ID, err)
			continue
		}
		if len(missing) == 0 {
			// Everything uploaded; the period just hasn't been processed yet.
			continue
		}

		message := fmt.Sprintf(
			"%s %s 仍有 %d 项必需文件未上传（如 %s），无法进行汇总处理。",
			p.TenantName, p.Label, len(missing), describeCombination(missing[0]),
		)

		userRows, err := pool.Query(ctx, `
			SELECT ut.user_id::text
			FROM user_tenants ut
			JOIN periods p ON p.tenant_id = ut.tenant_id
			WHERE p.id = $1
			UNION
			SELECT id::text FROM users WHERE role IN ('admin', 'super_admin')
		`, p.ID)
		if err != nil {
			log.Printf("[cron] error resolving recipients for period %s: %v", p.ID, err)
			continue
		}

		var userIDs []string
		for userRows.Next() {
			var id string
			if err := userRows.Scan(&id); err != nil {
				continue
			}
			userIDs = append(userIDs, id)
		}
		userRows.Close()

		for _, userID := range userIDs {
			var exists bool
			_ = pool.QueryRow(ctx, `
				SELECT EXISTS(
					SELECT 1 FROM notifications
					WHERE user_id     = $1
					  AND entity_type = 'period'
					  AND entity_id   = $2
					  AND created_at::date = $3::date
				)
			`, userID, p.ID, today).Scan(&exists)

			if exists {
				continue
			}

			_, err := pool.Exec(ctx, `
				INSERT INTO notifications (user_id, entity_type, entity_id, message)
				VALUES ($1, 'period', $2, $3)
			`, userID, p.ID, message)
			if err != nil {
				log.Printf("[cron] insert notification error: %v", err)
				continue
			}
			inserted++
		}
	}

	log.Printf("[cron] draft-period check complete – %d new notifications from %d stale periods", inserted, len(stale))
}

// missingFor recomputes the missing required combinations for a period.
func missingFor(ctx context.Context, db database.Service, periodID string) ([]insurance.Combination, error) {
	rows, err := db.GetPool().Query(ctx,
		"SELECT part, scheme, kind FROM source_files WHERE period_id = $1", periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coverage []insurance.Coverage
	for rows.Next() {
		var c insurance.Coverage
		if err := rows.Scan(&c.Part, &c.Scheme, &c.Kind); err != nil {
			return nil, err
		}
		coverage = append(coverage, c)
	}
	return insurance.MissingUploads(coverage), rows.Err()
}

func describeCombination(c insurance.Combination) string {
	return insurance.PartDisplayName(c.Part) + insurance.SchemeDisplayName(c.Scheme)
}
