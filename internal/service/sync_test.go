package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend/internal/domain"
)

func newSyncFixture(t *testing.T) (*fakeStore, *Sync) {
	t.Helper()
	store := newFakeStore()
	return store, NewSync(store, testLogger(), 500)
}

func ts(value string) *time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return &parsed
}

func TestPushCreatesMasterData(t *testing.T) {
	store, sync := newSyncFixture(t)
	ctx := context.Background()

	summary, err := sync.Push(ctx, "client-1", PushRequest{
		Products: []ProductIn{
			{SKU: "GULA-1", Name: "Gula Pasir", BaseUom: "gram", UpdatedAt: ts("2024-05-01T10:00:00Z")},
		},
		Locations: []LocationIn{
			{Code: "TOKO", Name: "Toko Depan", UpdatedAt: ts("2024-05-01T10:00:00Z")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary[domain.ResourceProducts].Created)
	assert.Equal(t, 1, summary[domain.ResourceLocations].Created)

	created, err := store.ProductBySKU(ctx, "GULA-1")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Active)
}

func TestPushLastWriteWins(t *testing.T) {
	store, sync := newSyncFixture(t)
	ctx := context.Background()

	_, err := sync.Push(ctx, "client-1", PushRequest{Products: []ProductIn{
		{SKU: "GULA-1", Name: "Gula Pasir", BaseUom: "gram", UpdatedAt: ts("2024-05-01T12:00:00Z")},
	}})
	require.NoError(t, err)

	// An older edit from a lagging device must not clobber the newer name.
	summary, err := sync.Push(ctx, "client-2", PushRequest{Products: []ProductIn{
		{SKU: "GULA-1", Name: "Gula Lama", BaseUom: "gram", UpdatedAt: ts("2024-05-01T09:00:00Z")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary[domain.ResourceProducts].Skipped)

	product, err := store.ProductBySKU(ctx, "GULA-1")
	require.NoError(t, err)
	assert.Equal(t, "Gula Pasir", product.Name)

	// A newer edit applies.
	summary, err = sync.Push(ctx, "client-2", PushRequest{Products: []ProductIn{
		{SKU: "GULA-1", Name: "Gula Premium", BaseUom: "gram", UpdatedAt: ts("2024-05-01T13:00:00Z")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary[domain.ResourceProducts].Updated)
	product, _ = store.ProductBySKU(ctx, "GULA-1")
	assert.Equal(t, "Gula Premium", product.Name)
}

func TestPushTombstoneSuppressesResurrection(t *testing.T) {
	store, sync := newSyncFixture(t)
	ctx := context.Background()

	_, err := sync.Push(ctx, "client-1", PushRequest{Customers: []CustomerIn{
		{ID: "cust-1", Name: "Budi", UpdatedAt: ts("2024-05-01T10:00:00Z")},
	}})
	require.NoError(t, err)

	deletedAt := ts("2024-05-02T10:00:00Z")
	_, err = sync.Push(ctx, "client-1", PushRequest{Deletes: []DeleteIn{
		{Resource: domain.ResourceCustomers, ID: "cust-1", DeletedAt: deletedAt},
	}})
	require.NoError(t, err)
	_, err = store.CustomerByID(ctx, "cust-1")
	require.Error(t, err)

	// A stale device re-pushing the customer must be skipped, even with a
	// newer updatedAt than anything stored.
	summary, err := sync.Push(ctx, "client-2", PushRequest{Customers: []CustomerIn{
		{ID: "cust-1", Name: "Budi", UpdatedAt: ts("2024-05-03T10:00:00Z")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary[domain.ResourceCustomers].Skipped)
	_, err = store.CustomerByID(ctx, "cust-1")
	assert.Error(t, err)
}

func TestPushDeleteBeforeUpsertInSameBatch(t *testing.T) {
	store, sync := newSyncFixture(t)
	ctx := context.Background()

	summary, err := sync.Push(ctx, "client-1", PushRequest{
		Customers: []CustomerIn{
			{ID: "cust-1", Name: "Budi", UpdatedAt: ts("2024-05-01T10:00:00Z")},
		},
		Deletes: []DeleteIn{
			{Resource: domain.ResourceCustomers, ID: "cust-1", DeletedAt: ts("2024-05-01T11:00:00Z")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary[domain.ResourceCustomers].Deleted)
	assert.Equal(t, 1, summary[domain.ResourceCustomers].Skipped)

	_, err = store.CustomerByID(ctx, "cust-1")
	assert.Error(t, err)
}

func TestPushCustomerMatchedByPhone(t *testing.T) {
	store, sync := newSyncFixture(t)
	ctx := context.Background()

	phone := "0812000111"
	require.NoError(t, store.CreateCustomer(ctx, domain.Customer{
		ID: "cust-1", Name: "Budi", Phone: &phone, UpdatedAt: ts("2024-05-01T10:00:00Z"),
	}))

	// The device never learned the server id; the phone matches instead of
	// minting a duplicate customer.
	summary, err := sync.Push(ctx, "client-1", PushRequest{Customers: []CustomerIn{
		{Name: "Budi Santoso", Phone: &phone, UpdatedAt: ts("2024-05-01T11:00:00Z")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary[domain.ResourceCustomers].Updated)

	customers, _ := store.ListCustomers(ctx, "", 0, 0)
	require.Len(t, customers, 1)
	assert.Equal(t, "Budi Santoso", customers[0].Name)
}

func TestPushUnknownDeleteResourceCounted(t *testing.T) {
	_, sync := newSyncFixture(t)

	summary, err := sync.Push(context.Background(), "client-1", PushRequest{Deletes: []DeleteIn{
		{Resource: "warehouses", ID: "w-1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary["warehouses"].Errors)
}

func TestPushBadRecordDoesNotAbortBatch(t *testing.T) {
	store, sync := newSyncFixture(t)
	ctx := context.Background()

	summary, err := sync.Push(ctx, "client-1", PushRequest{ProductUoms: []ProductUomIn{
		{ProductID: "p-1", Uom: "kg", ToBase: 0, UpdatedAt: ts("2024-05-01T10:00:00Z")},
		{ProductID: "p-1", Uom: "gram", ToBase: 1, UpdatedAt: ts("2024-05-01T10:00:00Z")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary[domain.ResourceProductUoms].Errors)
	assert.Equal(t, 1, summary[domain.ResourceProductUoms].Created)

	_, err = store.ProductUomByKey(ctx, "p-1", "gram")
	assert.NoError(t, err)
}

func TestPullAdvancesCheckpoint(t *testing.T) {
	store, sync := newSyncFixture(t)
	ctx := context.Background()

	updated := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.CreateProduct(ctx, domain.Product{
		ID: "p-1", SKU: "GULA-1", Name: "Gula", BaseUom: "gram", Active: true, UpdatedAt: &updated,
	}))

	result, err := sync.Pull(ctx, "client-1", []string{domain.ResourceProducts}, nil, 0)
	require.NoError(t, err)
	products := result.Data[domain.ResourceProducts].([]domain.Product)
	require.Len(t, products, 1)
	assert.False(t, result.NextCheckpoint.IsZero())

	// Second pull with no changes in between comes back empty: the stored
	// checkpoint advanced past the row's updatedAt.
	result, err = sync.Pull(ctx, "client-1", []string{domain.ResourceProducts}, nil, 0)
	require.NoError(t, err)
	products = result.Data[domain.ResourceProducts].([]domain.Product)
	assert.Empty(t, products)
}

func TestPullExplicitSinceOverridesCheckpoint(t *testing.T) {
	store, sync := newSyncFixture(t)
	ctx := context.Background()

	updated := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.CreateProduct(ctx, domain.Product{
		ID: "p-1", SKU: "GULA-1", Name: "Gula", BaseUom: "gram", Active: true, UpdatedAt: &updated,
	}))

	_, err := sync.Pull(ctx, "client-1", []string{domain.ResourceProducts}, nil, 0)
	require.NoError(t, err)

	// A truncated client re-requests an older window despite its advanced
	// checkpoint.
	since := updated.Add(-time.Hour)
	result, err := sync.Pull(ctx, "client-1", []string{domain.ResourceProducts}, &since, 0)
	require.NoError(t, err)
	products := result.Data[domain.ResourceProducts].([]domain.Product)
	assert.Len(t, products, 1)
}

func TestPullIncludesTombstones(t *testing.T) {
	store, sync := newSyncFixture(t)
	ctx := context.Background()

	deletedAt := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.RecordTombstone(ctx, domain.ResourceProducts, "p-gone", &deletedAt))

	result, err := sync.Pull(ctx, "client-1", nil, nil, 0)
	require.NoError(t, err)
	require.Len(t, result.Tombstones, 1)
	assert.Equal(t, "p-gone", result.Tombstones[0].EntityID)

	// Tombstones filter on the request's since, not the checkpoint.
	since := time.Now().UTC()
	result, err = sync.Pull(ctx, "client-1", nil, &since, 0)
	require.NoError(t, err)
	assert.Empty(t, result.Tombstones)
}

func TestPullFailureLeavesCheckpointsUntouched(t *testing.T) {
	store, sync := newSyncFixture(t)
	ctx := context.Background()

	updated := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.CreateProduct(ctx, domain.Product{
		ID: "p-1", SKU: "GULA-1", Name: "Gula", BaseUom: "gram", Active: true, UpdatedAt: &updated,
	}))

	// The unknown resource fails the whole pull; the device received nothing,
	// so the products checkpoint must not have moved.
	_, err := sync.Pull(ctx, "client-1", []string{domain.ResourceProducts, "warehouses"}, nil, 0)
	require.Error(t, err)

	result, err := sync.Pull(ctx, "client-1", []string{domain.ResourceProducts}, nil, 0)
	require.NoError(t, err)
	products := result.Data[domain.ResourceProducts].([]domain.Product)
	require.Len(t, products, 1)
	assert.Equal(t, "p-1", products[0].ID)
}

func TestPullUnknownResource(t *testing.T) {
	_, sync := newSyncFixture(t)

	_, err := sync.Pull(context.Background(), "client-1", []string{"warehouses"}, nil, 0)
	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.CodeValidation, domainErr.Code)
}

func TestRegisterDevice(t *testing.T) {
	_, sync := newSyncFixture(t)
	ctx := context.Background()

	client, err := sync.RegisterDevice(ctx, "kasir-tablet-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "kasir-tablet-1", client.DeviceID)

	again, err := sync.RegisterDevice(ctx, "kasir-tablet-1", nil)
	require.NoError(t, err)
	assert.Equal(t, client.ID, again.ID)

	_, err = sync.RegisterDevice(ctx, "   ", nil)
	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.CodeValidation, domainErr.Code)
}
