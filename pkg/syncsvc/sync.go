// Package syncsvc grants one device at a time exclusive write authority
// over a user's tree for the duration of a synchronization session.
package syncsvc

import (
	"context"
	"strconv"
	"time"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/coordination"
	"github.com/inkvault/inkvault/pkg/models"
)

// DefaultLeaseTTL is how long a sync session may run without renewal.
const DefaultLeaseTTL = 5 * time.Minute

const leasePrefix = "synclock:"

// StorageProbe reports whether a user's tree holds any files. The sync
// handshake uses it to tell the device which direction to synchronize.
type StorageProbe interface {
	StorageEmpty(ctx context.Context, userID int64) (bool, error)
}

// Coordinator manages per-user sync leases.
type Coordinator struct {
	coord coordination.Service
	probe StorageProbe
	ttl   time.Duration
}

// New creates a sync coordinator. ttl of zero uses DefaultLeaseTTL.
func New(coord coordination.Service, probe StorageProbe, ttl time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Coordinator{coord: coord, probe: probe, ttl: ttl}
}

// Start opens a sync session for equipment. A lease held by the same
// equipment is refreshed; a live lease held by another equipment fails
// with ErrSyncHeld (protocol code E0078). Expired leases are taken over
// silently.
//
// The returned synType is true when the user already has content on the
// server, telling the device to reconcile rather than bulk-upload.
func (c *Coordinator) Start(ctx context.Context, userID int64, equipment string) (synType bool, err error) {
	ok, err := c.coord.AcquireLock(ctx, leaseKey(userID), equipment, c.ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		holder, _ := c.coord.GetLockOwner(ctx, leaseKey(userID))
		logger.Warn("sync session contention",
			logger.KeyUserID, userID,
			logger.KeyEquipment, equipment,
			"holder", holder)
		return false, models.ErrSyncHeld
	}

	empty, err := c.probe.StorageEmpty(ctx, userID)
	if err != nil {
		// The lease is held; give it back rather than strand the user
		// until expiry.
		c.coord.ReleaseLock(ctx, leaseKey(userID), equipment)
		return false, err
	}

	logger.Info("sync session started",
		logger.KeyUserID, userID,
		logger.KeyEquipment, equipment)
	return !empty, nil
}

// End closes the session. Only the holding equipment releases the lease;
// anyone else's End is a no-op, so a late End after expiry and takeover
// cannot break the new holder's session.
func (c *Coordinator) End(ctx context.Context, userID int64, equipment string) error {
	if err := c.coord.ReleaseLock(ctx, leaseKey(userID), equipment); err != nil {
		return err
	}
	logger.Info("sync session ended",
		logger.KeyUserID, userID,
		logger.KeyEquipment, equipment)
	return nil
}

// Holder returns the equipment currently holding the user's lease, or
// models.ErrKeyNotFound when no live session exists.
func (c *Coordinator) Holder(ctx context.Context, userID int64) (string, error) {
	return c.coord.GetLockOwner(ctx, leaseKey(userID))
}

func leaseKey(userID int64) string {
	return leasePrefix + strconv.FormatInt(userID, 10)
}
