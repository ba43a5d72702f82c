package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/config"
	"skillyhead-service/internal/domain"
)

func boltConfig(t *testing.T) (string, config.Config) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "storage:\n  driver: bolt\nbolt:\n  path: " + filepath.Join(dir, "data.db") + "\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return path, cfg
}

func TestBootstrapAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	var cfg config.Config
	cfg.Storage.Driver = config.DriverMemory
	cfg.Bootstrap.AdminEmail = "root@example.com"
	cfg.Bootstrap.AdminPassword = "correct-horse"

	be, err := openBackend(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	defer be.Close()
	core := app.New(be.repos, nil)

	for i := 0; i < 2; i++ {
		if err := bootstrapAdmin(ctx, core, cfg, zap.NewNop()); err != nil {
			t.Fatalf("bootstrap run %d: %v", i, err)
		}
	}
	id, err := core.Identity.Authenticate(ctx, app.Credentials{Email: "root@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("login as bootstrap admin: %v", err)
	}
	if id.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", id.Role)
	}
}

func TestExportCommandWritesWorkbook(t *testing.T) {
	ctx := context.Background()
	path, cfg := boltConfig(t)

	be, err := openBackend(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	core := app.New(be.repos, nil)
	now := time.Now().UTC()
	client, err := core.Tenants.CreateClient(ctx, systemIdentity, app.NewClient{
		Name: "acme",
		Config: domain.ClientConfig{
			ClientType:      domain.ClientCompany,
			Plan:            domain.PlanTrial,
			ContractEndDate: now.AddDate(0, 1, 0),
			MaxLicences:     5,
			PrimaryEmail:    "ops@acme.example.com",
		},
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	batch, err := core.Tenants.CreateBatch(ctx, systemIdentity, app.NewBatch{
		Name: "Autumn", ClientID: client.ID, StartDate: now, EndDate: now.AddDate(0, 2, 0),
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	q, err := core.Catalog.CreateQuestion(ctx, systemIdentity, app.QuestionDraft{
		ClientID: client.ID,
		Type:     domain.QuestionTheory,
		Text:     "Describe a mutex",
		Config:   domain.TheoryConfig{Difficulty: domain.DifficultyEasy, WordLimit: 100},
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	a, err := core.Assessments.ComposeAssessment(ctx, systemIdentity, app.NewAssessment{
		ClientID: client.ID, BatchID: batch.ID, Title: "Locks", QuestionIDs: []string{q.ID},
		StartDate: now, TargetDate: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	be.Close()

	out := filepath.Join(t.TempDir(), "results.xlsx")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "export", "--assessment", a.ID, "-o", out})
	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != "Locks" {
		t.Fatalf("unexpected sheets %v", sheets)
	}
}

func TestExportRequiresAssessment(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"export"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error without --assessment")
	}
}
