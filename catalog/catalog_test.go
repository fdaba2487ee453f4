package catalog

import "testing"

func newTestCatalog(t *testing.T) *InMemoryCatalog {
	t.Helper()
	c, err := NewInMemoryCatalog()
	if err != nil {
		t.Fatalf("NewInMemoryCatalog: %v", err)
	}
	return c
}

func TestGetTableMissing(t *testing.T) {
	c := newTestCatalog(t)
	if _, ok := c.GetTable(1); ok {
		t.Fatal("expected miss on an empty catalog")
	}
}

func TestRegisterAndGetTable(t *testing.T) {
	c := newTestCatalog(t)
	c.RegisterTable(TableMetadata{OID: 1, Name: "users"})

	got, ok := c.GetTable(1)
	if !ok {
		t.Fatal("expected to find table oid 1")
	}
	if got.Name != "users" {
		t.Fatalf("expected name 'users', got %q", got.Name)
	}

	// A second lookup should still resolve, whether or not the first
	// call's cache write has landed yet.
	got, ok = c.GetTable(1)
	if !ok || got.Name != "users" {
		t.Fatalf("expected consistent second lookup, got %+v ok=%v", got, ok)
	}
}

func TestRegisterIndexLinksToTable(t *testing.T) {
	c := newTestCatalog(t)
	c.RegisterTable(TableMetadata{OID: 1, Name: "users"})
	c.RegisterIndex(IndexMetadata{OID: 10, Name: "users_pkey", TableOID: 1})
	c.RegisterIndex(IndexMetadata{OID: 11, Name: "users_email_idx", TableOID: 1})

	table, ok := c.GetTable(1)
	if !ok {
		t.Fatal("expected table to exist")
	}
	if len(table.IndexOIDs) != 2 {
		t.Fatalf("expected 2 linked indexes, got %v", table.IndexOIDs)
	}

	idx, ok := c.GetIndex(10)
	if !ok || idx.Name != "users_pkey" {
		t.Fatalf("GetIndex(10): got %+v ok=%v", idx, ok)
	}
}

func TestRegisterIndexTwiceDoesNotDuplicate(t *testing.T) {
	c := newTestCatalog(t)
	c.RegisterTable(TableMetadata{OID: 1, Name: "users"})
	c.RegisterIndex(IndexMetadata{OID: 10, Name: "users_pkey", TableOID: 1})
	c.RegisterIndex(IndexMetadata{OID: 10, Name: "users_pkey", TableOID: 1})

	table, _ := c.GetTable(1)
	if len(table.IndexOIDs) != 1 {
		t.Fatalf("expected re-registering the same index oid to be idempotent, got %v", table.IndexOIDs)
	}
}

func TestGetTableIndexesByName(t *testing.T) {
	c := newTestCatalog(t)
	c.RegisterTable(TableMetadata{OID: 1, Name: "users"})
	c.RegisterIndex(IndexMetadata{OID: 10, Name: "users_pkey", TableOID: 1})

	idxs, ok := c.GetTableIndexes("users")
	if !ok {
		t.Fatal("expected to find indexes for 'users'")
	}
	if len(idxs) != 1 || idxs[0].OID != 10 {
		t.Fatalf("expected [{OID:10}], got %+v", idxs)
	}

	if _, ok := c.GetTableIndexes("does_not_exist"); ok {
		t.Fatal("expected miss for an unregistered table name")
	}
}

func TestGetIndexMissing(t *testing.T) {
	c := newTestCatalog(t)
	if _, ok := c.GetIndex(999); ok {
		t.Fatal("expected miss on an unregistered index oid")
	}
}
