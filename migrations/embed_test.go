package migrations

import "testing"

func TestAll(t *testing.T) {
	migrations, err := All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(migrations) < 2 {
		t.Fatalf("len(All()) = %d, want at least 2", len(migrations))
	}
	for i, m := range migrations {
		if m.UpSQL == "" || m.DownSQL == "" {
			t.Errorf("migration %s missing up or down SQL", m.Version)
		}
		if i > 0 && migrations[i-1].Version >= m.Version {
			t.Errorf("migrations not sorted at %d", i)
		}
	}
}
