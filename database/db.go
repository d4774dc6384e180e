package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/parkerflight/bookingcore/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, errors.Wrap(err, "error connecting to postgres")
	}
	err = createBookingTable(db)
	if err != nil {
		return nil, err
	}
	err = createWebhookEventTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createBookingTable creates a PostgreSQL table for the BookingOrder struct
func createBookingTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bookings (
			id SERIAL PRIMARY KEY,
			booking_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			provider_order_id TEXT UNIQUE,
			offer_id TEXT,
			booking_reference TEXT,
			status TEXT NOT NULL,
			failure_reason TEXT,
			ticket_numbers JSONB,
			total_amount TEXT,
			total_currency TEXT,
			passenger_data JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	log.Println(err)
	return err
}

// createWebhookEventTable creates a PostgreSQL table for the WebhookEvent struct.
// The unique constraint on external_event_id is load-bearing: a concurrent
// double-delivery that races past the dedup lookup is rejected here and
// treated as already seen.
func createWebhookEventTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS webhook_events (
			id SERIAL PRIMARY KEY,
			external_event_id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			provider_order_id TEXT,
			payload JSONB,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			processing_error TEXT,
			received_at TIMESTAMP NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMP
		)
	`)
	log.Println(err)
	return err
}
