package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/community-payback-reconciler/internal/db"
	"github.com/hackgods/community-payback-reconciler/internal/outcome"
	redisclient "github.com/hackgods/community-payback-reconciler/internal/redis"
)

var projectCodes = []string{"N56123456", "N56234567", "N56345678", "N56456789", "N56567890"}

var ratings = []outcome.Rating{
	outcome.RatingExcellent,
	outcome.RatingGood,
	outcome.RatingNotApplicable,
	outcome.RatingPoor,
	outcome.RatingSatisfactory,
	outcome.RatingUnsatisfactory,
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyPostgresSchema(ctx, pool); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	appointmentIDs, err := seedPeople(context.Background(), pool, 200)
	if err != nil {
		log.Fatalf("seed people: %v", err)
	}
	if err := seedOutcomes(context.Background(), pool, appointmentIDs); err != nil {
		log.Fatalf("seed outcomes: %v", err)
	}

	log.Println("seed complete")
}

// seedPeople creates a requirement per CRN, a handful of required slots and
// books some of them, leaving the rest for the scheduler to plan.
func seedPeople(ctx context.Context, pool *pgxpool.Pool, count int) ([]int64, error) {
	log.Printf("seeding %d requirements", count)

	const batchSize = 50
	var appointmentIDs []int64
	nextID := int64(100000)
	today := time.Now().UTC().Truncate(24 * time.Hour)

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			crn := fmt.Sprintf("%c%06d", 'A'+rune(i%26), i)
			required := int64(gofakeit.Number(40, 300)) * 60
			completed := int64(gofakeit.Number(0, int(required/60))) * 60
			startDate := today.AddDate(0, 0, -gofakeit.Number(0, 90))

			_, err := tx.Exec(ctx, `
				INSERT INTO community_payback_requirements
					(crn, event_number, required_minutes, adjustment_minutes, completed_minutes, start_date, end_date)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (crn) DO NOTHING
			`, crn, gofakeit.Number(1, 4), required, int64(gofakeit.Number(-2, 2))*60, completed, startDate, startDate.AddDate(1, 0, 0))
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}

			for d := 1; d <= gofakeit.Number(1, 6); d++ {
				start := today.AddDate(0, 0, d*7).Add(9 * time.Hour)
				project := projectCodes[gofakeit.Number(0, len(projectCodes)-1)]

				_, err := tx.Exec(ctx, `
					INSERT INTO community_payback_required_appointments (crn, project_code, start_time, end_time)
					VALUES ($1, $2, $3, $4)
				`, crn, project, start, start.Add(7*time.Hour))
				if err != nil {
					_ = tx.Rollback(ctx)
					return nil, err
				}

				if !gofakeit.Bool() {
					continue
				}

				_, err = tx.Exec(ctx, `
					INSERT INTO community_payback_appointments (id, crn, project_code, start_time, end_time)
					VALUES ($1, $2, $3, $4, $5)
					ON CONFLICT (id) DO NOTHING
				`, nextID, crn, project, start, start.Add(7*time.Hour))
				if err != nil {
					_ = tx.Rollback(ctx)
					return nil, err
				}
				appointmentIDs = append(appointmentIDs, nextID)
				nextID++
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("requirements seeded: %d/%d", end, count)
	}

	return appointmentIDs, nil
}

// seedOutcomes records up to three outcome versions per appointment through
// the outcome service so history and dedup behave as in production.
func seedOutcomes(ctx context.Context, pool *pgxpool.Pool, appointmentIDs []int64) error {
	log.Printf("seeding outcomes for %d appointments", len(appointmentIDs))

	repo := outcome.NewPgRepository(pool)
	svc := outcome.NewService(repo, repo, redisclient.NewLocalLocker(), zap.NewNop())

	recorded := 0
	for _, id := range appointmentIDs {
		content := fakeContent()
		for v := 0; v < gofakeit.Number(1, 3); v++ {
			res, err := svc.Apply(ctx, id, content)
			if err != nil {
				return err
			}
			if res == outcome.ResultRecorded {
				recorded++
			}
			if gofakeit.Bool() {
				notes := gofakeit.Phrase()
				content.Notes = &notes
			}
		}
	}

	log.Printf("outcomes seeded: %d records", recorded)
	return nil
}

func fakeContent() outcome.Content {
	start := gofakeit.DateRange(time.Now().AddDate(0, -1, 0), time.Now()).UTC().Truncate(time.Hour)
	hiVis := gofakeit.Bool()
	intensive := gofakeit.Bool()
	penalty := int64(gofakeit.Number(0, 4)) * 15
	quality := ratings[gofakeit.Number(0, len(ratings)-1)]
	behaviour := ratings[gofakeit.Number(0, len(ratings)-1)]

	return outcome.Content{
		ProjectTypeID:         int64(gofakeit.Number(1, 8)),
		StartTime:             start,
		EndTime:               start.Add(7 * time.Hour),
		ContactOutcomeID:      uuid.New(),
		SupervisorTeamID:      int64(gofakeit.Number(1, 40)),
		SupervisorOfficerCode: fmt.Sprintf("N56A%03d", gofakeit.Number(0, 999)),
		HiVisWorn:             &hiVis,
		WorkedIntensively:     &intensive,
		PenaltyMinutes:        &penalty,
		WorkQuality:           &quality,
		Behaviour:             &behaviour,
	}
}
