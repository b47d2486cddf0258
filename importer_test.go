package twinsync_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/go-digitaltwin/twinsync"
	"github.com/go-digitaltwin/twinsync/memtwin"
)

const exportedDocument = `{
  "entities": [
    {"entity_id": "pump-7", "parent_entity_id": "line-1", "entity_name": "Pump 7", "properties": {"rpm": "1200"}},
    {"entity_id": "line-1", "parent_entity_id": "site-a", "parent_name": "Site A", "entity_name": "Line 1"},
    {"entity_id": "valve-2", "parent_entity_id": "line-1", "entity_name": "Valve 2", "component_type": "com.example.valve"}
  ]
}`

// memSource returns a Source serving the given documents from an in-memory
// bucket, whatever bucket name the job asks for.
func memSource(t *testing.T, docs map[string]string) twinsync.Source {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { _ = bucket.Close() })
	for key, doc := range docs {
		if err := bucket.WriteAll(context.Background(), key, []byte(doc), nil); err != nil {
			t.Fatal(err)
		}
	}
	return twinsync.BlobSource{Open: func(context.Context, string) (*blob.Bucket, error) {
		return blob.PrefixedBucket(bucket, ""), nil
	}}
}

func newImporter(t *testing.T, svc twinsync.Service, opts twinsync.Options) *twinsync.Importer {
	t.Helper()
	opts.Wait = fastWait
	return &twinsync.Importer{
		Service:  svc,
		Buckets:  twinsync.DirBuckets{Root: t.TempDir()},
		Identity: twinsync.StaticIdentity("arn:aws:iam::123456789012:role/importer"),
		Source:   memSource(t, map[string]string{"plant/entities.json": exportedDocument}),
		Options:  opts,
	}
}

var testJob = twinsync.ImportJob{
	OutputBucket:    "exports",
	OutputPath:      "plant/entities.json",
	WorkspaceID:     "plant",
	ComponentTypeID: testComponentType,
}

func TestImporterRun(t *testing.T) {
	for _, parallelism := range []int{0, 4} {
		t.Run(fmt.Sprintf("parallelism=%d", parallelism), func(t *testing.T) {
			svc := &memtwin.Service{ActivationPolls: 2}
			imp := newImporter(t, svc, twinsync.Options{Parallelism: parallelism})

			report, err := imp.Run(context.Background(), testJob)
			if err != nil {
				t.Fatalf("Run() = %v", err)
			}
			if report.RunID == "" {
				t.Error("Report has no run id")
			}
			want := twinsync.Report{
				WorkspaceID:           "plant",
				WorkspaceCreated:      true,
				ComponentTypesCreated: 2,
				Records:               3,
				Entities:              twinsync.ResolverStats{Created: 4, Synthesized: 1},
			}
			// Whether line-1 counts as revisited depends on the resolution order.
			ignore := cmpopts.IgnoreFields(twinsync.Report{}, "RunID", "Elapsed", "Entities.Revisited")
			if diff := cmp.Diff(want, report, ignore); diff != "" {
				t.Errorf("Report mismatch (-want +got):\n%v", diff)
			}

			var got []string
			for _, e := range svc.Entities("plant") {
				got = append(got, e.ID+" <- "+e.ParentID)
			}
			wantTree := []string{
				"line-1 <- site-a",
				"pump-7 <- line-1",
				"site-a <- " + twinsync.RootEntityID,
				"valve-2 <- line-1",
			}
			if diff := cmp.Diff(wantTree, got); diff != "" {
				t.Errorf("Entity tree mismatch (-want +got):\n%v", diff)
			}
		})
	}
}

func TestImporterRerun(t *testing.T) {
	svc := &memtwin.Service{ActivationPolls: 1}
	imp := newImporter(t, svc, twinsync.Options{})
	if _, err := imp.Run(context.Background(), testJob); err != nil {
		t.Fatalf("first Run() = %v", err)
	}

	report, err := imp.Run(context.Background(), testJob)
	if err != nil {
		t.Fatalf("second Run() = %v", err)
	}
	want := twinsync.Report{
		WorkspaceID: "plant",
		Records:     3,
		Entities:    twinsync.ResolverStats{Skipped: 3},
	}
	if diff := cmp.Diff(want, report, cmpopts.IgnoreFields(twinsync.Report{}, "RunID", "Elapsed")); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%v", diff)
	}
}

func TestImporterRunWithoutComponentType(t *testing.T) {
	svc := new(memtwin.Service)
	imp := newImporter(t, svc, twinsync.Options{})
	job := testJob
	job.ComponentTypeID = ""

	if _, err := imp.Run(context.Background(), job); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	pump, _ := svc.Entity("plant", "pump-7")
	if len(pump.Components) != 0 {
		t.Errorf("pump-7 components = %v, want none", pump.Components)
	}
	// Records naming their own component type still carry it.
	valve, _ := svc.Entity("plant", "valve-2")
	if c := valve.Components[twinsync.PropertiesComponent]; c.ComponentTypeID != "com.example.valve" {
		t.Errorf("valve-2 components = %v, want com.example.valve", valve.Components)
	}
}

func TestImporterRunMissingDocument(t *testing.T) {
	svc := new(memtwin.Service)
	imp := newImporter(t, svc, twinsync.Options{})
	job := testJob
	job.OutputPath = "plant/missing.json"

	_, err := imp.Run(context.Background(), job)
	if !errors.Is(err, twinsync.ErrNotFound) {
		t.Fatalf("Run() = %v, want %v", err, twinsync.ErrNotFound)
	}
	if n := len(svc.Calls()); n != 0 {
		t.Errorf("Run() issued %d service calls before reading its document", n)
	}
}

func TestImporterRunInvalidJob(t *testing.T) {
	imp := newImporter(t, new(memtwin.Service), twinsync.Options{})
	if _, err := imp.Run(context.Background(), twinsync.ImportJob{WorkspaceID: "plant"}); err == nil {
		t.Fatal("Run() of an invalid job succeeded")
	}
}

func TestImporterAbortsOnFailure(t *testing.T) {
	svc := new(memtwin.Service)
	svc.Fail(memtwin.OpCreateEntity, "line-1", errors.New("throttled"))
	imp := newImporter(t, svc, twinsync.Options{})

	_, err := imp.Run(context.Background(), testJob)
	if !errors.Is(err, twinsync.ErrTransport) {
		t.Fatalf("Run() = %v, want %v", err, twinsync.ErrTransport)
	}
	if _, ok := svc.Entity("plant", "pump-7"); ok {
		t.Error("pump-7 was created although its parent failed")
	}

	// The retried job picks up where the failed one stopped.
	svc.Fail(memtwin.OpCreateEntity, "line-1", nil)
	report, err := imp.Run(context.Background(), testJob)
	if err != nil {
		t.Fatalf("retried Run() = %v", err)
	}
	if report.Entities.Created != 3 {
		t.Errorf("retried Run() created %d entities, want 3", report.Entities.Created)
	}
}
