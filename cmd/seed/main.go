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
	"github.com/rs/zerolog"

	"github.com/carebook/hospital-scheduling/internal/db"
	"github.com/carebook/hospital-scheduling/internal/schedule"
)

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

	gofakeit.Seed(time.Now().UnixNano())

	staffIDs, err := seedStaff(context.Background(), pool, 25)
	if err != nil {
		log.Fatalf("seed staff: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 500)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSlots(context.Background(), pool, staffIDs); err != nil {
		log.Fatalf("seed slots: %v", err)
	}
	if err := seedDelays(context.Background(), pool, staffIDs); err != nil {
		log.Fatalf("seed delays: %v", err)
	}
	if err := seedPayments(context.Background(), pool, patientIDs); err != nil {
		log.Fatalf("seed payments: %v", err)
	}

	log.Println("seed complete")
}

func seedStaff(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d staff members", count)

	departments := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}
	designations := []string{"Consultant", "Senior Registrar", "Registrar", "Resident"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		dept := departments[i%len(departments)]
		desig := designations[i%len(designations)]

		_, err := tx.Exec(ctx, `
			INSERT INTO staff (id, name, department, designation, default_capacity, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, "Dr. "+gofakeit.Name(), dept, desig, 5)
		if err != nil {
			return nil, fmt.Errorf("insert staff: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Name(), email)
		if err != nil {
			return nil, fmt.Errorf("insert patient: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, staffIDs []uuid.UUID) error {
	log.Printf("seeding two weeks of slots for %d staff members", len(staffIDs))

	repo := schedule.NewPgRepository(pool)
	generator := schedule.NewGenerator(repo, schedule.GeneratorConfig{
		WindowStartHour: 9,
		WindowHours:     9,
		DefaultCapacity: 5,
		HorizonDays:     7,
		ReplenishWeeks:  2,
	}, zerolog.Nop())

	today := schedule.Day(time.Now())
	total := 0
	for _, id := range staffIDs {
		inserted, err := generator.Generate(ctx, id, today, today.AddDate(0, 0, 13), 5, schedule.DaysWeekdays)
		if err != nil {
			return err
		}
		total += inserted
	}

	log.Printf("inserted %d slots", total)
	return nil
}

// seedDelays marks a few of today's slots running late with one of the
// preset quick-pick delays, so the dashboard has advisory state to show.
func seedDelays(ctx context.Context, pool *pgxpool.Pool, staffIDs []uuid.UUID) error {
	repo := schedule.NewPgRepository(pool)
	today := schedule.Day(time.Now())

	marked := 0
	for i, id := range staffIDs {
		if i%5 != 0 {
			continue
		}
		slots, err := repo.ListSlots(ctx, id, today, today, true)
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			continue
		}
		delay := schedule.DelayQuickPicks[i%len(schedule.DelayQuickPicks)]
		if _, err := repo.SetRunningLate(ctx, slots[0].ID, delay); err != nil {
			return err
		}
		marked++
	}

	log.Printf("marked %d slots running late", marked)
	return nil
}

// seedPayments creates a confirmed payment reference per patient so
// bookings can be exercised end to end against the verifier.
func seedPayments(ctx context.Context, pool *pgxpool.Pool, patientIDs []uuid.UUID) error {
	log.Printf("seeding payment confirmations for %d patients", len(patientIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, id := range patientIDs {
		ref := fmt.Sprintf("pay_%s", gofakeit.LetterN(16))
		_, err := tx.Exec(ctx, `
			INSERT INTO payment_confirmations (ref, patient_id, confirmed_at)
			VALUES ($1, $2, now())
		`, ref, id)
		if err != nil {
			return fmt.Errorf("insert payment confirmation: %w", err)
		}
	}

	return tx.Commit(ctx)
}
