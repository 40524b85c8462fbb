// Package mysqlstore persists parking spots and tickets in MySQL through GORM.
package mysqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parking-system/internal/parking"
)

type Config struct {
	DSN        string
	Debug      bool
	MaxRetries uint
}

func (c Config) maxTries() uint {
	if c.MaxRetries == 0 {
		return 5
	}
	return c.MaxRetries
}

type Store struct {
	db *gorm.DB
}

// Open connects to MySQL and installs the OpenTelemetry plugin. The DSN is
// forced to parse DATETIME columns into time.Time. Connecting is retried
// while the database comes up.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsnConfig, err := mysqldriver.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	dsnConfig.ParseTime = true
	// Updates report matched rows, so writing an unchanged value still counts.
	dsnConfig.ClientFoundRows = true

	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 5 * time.Second

	// gorm queries the server version on open, so the whole open is retried.
	db, err := backoff.Retry(ctx, func() (*gorm.DB, error) {
		return gorm.Open(mysql.Open(dsnConfig.FormatDSN()), &gorm.Config{
			Logger: logger.Default.LogMode(logLevel),
		})
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(cfg.maxTries()),
	)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return New(db), nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&parkingRow{}, &ticketRow{})
}

// Seed creates any missing spots, numbering cars first and then bikes.
// Existing rows keep their availability.
func (s *Store) Seed(ctx context.Context, carSpots, bikeSpots int) error {
	db := s.db.WithContext(ctx)

	rows := make([]parkingRow, 0, carSpots+bikeSpots)
	for i := 0; i < carSpots; i++ {
		rows = append(rows, parkingRow{Number: len(rows) + 1, Available: true, Type: string(parking.ParkingTypeCar)})
	}
	for i := 0; i < bikeSpots; i++ {
		rows = append(rows, parkingRow{Number: len(rows) + 1, Available: true, Type: string(parking.ParkingTypeBike)})
	}

	for _, row := range rows {
		var existing parkingRow
		if err := db.Where("PARKING_NUMBER = ?", row.Number).First(&existing).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&row).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}

// Reset deletes every ticket and frees every spot.
func (s *Store) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&ticketRow{}).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Model(&parkingRow{}).Update("AVAILABLE", true).Error
	})
}

func (s *Store) GetNextAvailableSlot(ctx context.Context, parkingType parking.ParkingType) (int, error) {
	var row parkingRow
	err := s.db.WithContext(ctx).
		Where("AVAILABLE = ? AND TYPE = ?", true, string(parkingType)).
		Order("PARKING_NUMBER ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query next available slot: %w", err)
	}
	return row.Number, nil
}

// UpdateParking stores the spot's availability. Occupying only matches a spot
// that is still available, so concurrent check-ins cannot share one.
func (s *Store) UpdateParking(ctx context.Context, spot *parking.ParkingSpot) (bool, error) {
	query := s.db.WithContext(ctx).
		Model(&parkingRow{}).
		Where("PARKING_NUMBER = ?", spot.ID)
	if !spot.IsAvailable {
		query = query.Where("AVAILABLE = ?", true)
	}

	result := query.Update("AVAILABLE", spot.IsAvailable)
	if result.Error != nil {
		return false, fmt.Errorf("update parking %d: %w", spot.ID, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *Store) SaveTicket(ctx context.Context, ticket *parking.Ticket) (bool, error) {
	if ticket.ParkingSpot == nil {
		return false, fmt.Errorf("ticket for %s has no parking spot", ticket.VehicleRegNumber)
	}

	row := ticketRow{
		ParkingNumber:    ticket.ParkingSpot.ID,
		VehicleRegNumber: ticket.VehicleRegNumber,
		Price:            ticket.Price,
		InTime:           ticket.InTime,
		OutTime:          ticket.OutTime,
	}
	if err := s.db.WithContext(ctx).Omit("Parking").Create(&row).Error; err != nil {
		return false, fmt.Errorf("insert ticket: %w", err)
	}

	ticket.ID = row.ID
	return true, nil
}

// GetTicket returns the most recent ticket for the registration, or nil when
// the vehicle has never parked.
func (s *Store) GetTicket(ctx context.Context, vehicleRegNumber string) (*parking.Ticket, error) {
	var rows []ticketRow
	err := s.db.WithContext(ctx).
		Preload("Parking").
		Where("VEHICLE_REG_NUMBER = ?", vehicleRegNumber).
		Order("IN_TIME DESC").
		Order("ID DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query ticket: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toTicket(), nil
}

func (s *Store) UpdateTicket(ctx context.Context, ticket *parking.Ticket) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&ticketRow{}).
		Where("ID = ?", ticket.ID).
		Updates(map[string]any{
			"PRICE":    ticket.Price,
			"OUT_TIME": ticket.OutTime,
		})
	if result.Error != nil {
		return false, fmt.Errorf("update ticket %d: %w", ticket.ID, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *Store) UpdateTicketInTime(ctx context.Context, ticket *parking.Ticket) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&ticketRow{}).
		Where("ID = ?", ticket.ID).
		Update("IN_TIME", ticket.InTime)
	if result.Error != nil {
		return false, fmt.Errorf("update ticket %d in-time: %w", ticket.ID, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *Store) IsAlreadyInParking(ctx context.Context, vehicleRegNumber string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&ticketRow{}).
		Where("VEHICLE_REG_NUMBER = ? AND OUT_TIME IS NULL", vehicleRegNumber).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count open tickets: %w", err)
	}
	return count > 0, nil
}

// GetNbTicket counts completed visits. A ticket still open is not included.
func (s *Store) GetNbTicket(ctx context.Context, vehicleRegNumber string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&ticketRow{}).
		Where("VEHICLE_REG_NUMBER = ? AND OUT_TIME IS NOT NULL", vehicleRegNumber).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return int(count), nil
}

// FindSpot returns the stored spot, or nil when the number is unknown.
func (s *Store) FindSpot(ctx context.Context, number int) (*parking.ParkingSpot, error) {
	var rows []parkingRow
	if err := s.db.WithContext(ctx).Where("PARKING_NUMBER = ?", number).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query parking %d: %w", number, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return parking.NewParkingSpot(rows[0].Number, parking.ParkingType(rows[0].Type), rows[0].Available), nil
}
