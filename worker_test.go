package twinsync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danielorbach/go-component"
	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/mempubsub"

	"github.com/go-digitaltwin/twinsync"
	"github.com/go-digitaltwin/twinsync/memtwin"
)

// deliver publishes body and receives it back from a fresh subscription.
func deliver(t *testing.T, body string) (*pubsub.Subscription, *pubsub.Message) {
	t.Helper()
	ctx := context.Background()
	topic := mempubsub.NewTopic()
	t.Cleanup(func() { _ = topic.Shutdown(ctx) })
	sub := mempubsub.NewSubscription(topic, time.Minute)
	t.Cleanup(func() { _ = sub.Shutdown(ctx) })

	if err := topic.Send(ctx, &pubsub.Message{Body: []byte(body)}); err != nil {
		t.Fatal(err)
	}
	msg, err := sub.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return sub, msg
}

// redelivered reports whether sub delivers another message shortly.
func redelivered(t *testing.T, sub *pubsub.Subscription) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	msg, err := sub.Receive(ctx)
	if err != nil {
		return false
	}
	msg.Ack()
	return true
}

func TestHandleJob(t *testing.T) {
	svc := new(memtwin.Service)
	imp := newImporter(t, svc, twinsync.Options{})
	sub, msg := deliver(t, `{"body": {"outputBucket": "exports", "outputPath": "plant/entities.json", "workspaceId": "plant"}}`)

	err := twinsync.HandleJob(context.Background(), imp, msg)
	if err != nil {
		t.Fatalf("HandleJob() = %v", err)
	}
	twinsync.Settle(msg, err)
	if n := len(svc.Entities("plant")); n != 4 {
		t.Errorf("Job created %d entities, want 4", n)
	}
	if redelivered(t, sub) {
		t.Error("A completed job was redelivered")
	}
}

func TestHandleJobMalformed(t *testing.T) {
	svc := new(memtwin.Service)
	imp := newImporter(t, svc, twinsync.Options{})
	sub, msg := deliver(t, `{"workspaceId": "plant"}`)

	err := twinsync.HandleJob(context.Background(), imp, msg)
	if err == nil {
		t.Fatal("HandleJob() of a malformed job succeeded")
	}
	twinsync.Settle(msg, err)
	if n := len(svc.Calls()); n != 0 {
		t.Errorf("A malformed job issued %d service calls", n)
	}
	if redelivered(t, sub) {
		t.Error("A malformed job was redelivered")
	}
}

func TestHandleJobFailed(t *testing.T) {
	svc := new(memtwin.Service)
	boom := errors.New("throttled")
	svc.Fail(memtwin.OpListWorkspaces, "", boom)
	imp := newImporter(t, svc, twinsync.Options{})
	sub, msg := deliver(t, `{"outputBucket": "exports", "outputPath": "plant/entities.json", "workspaceId": "plant"}`)

	err := twinsync.HandleJob(context.Background(), imp, msg)
	if !errors.Is(err, boom) {
		t.Fatalf("HandleJob() = %v, want it to wrap %v", err, boom)
	}
	twinsync.Settle(msg, err)
	if !redelivered(t, sub) {
		t.Error("A failed job was not redelivered")
	}
}

// The following example demonstrates how to serve import jobs received from a
// subscription. This code is for illustration purposes only and is not meant to
// be executed as is.
func ExampleImportJobs() {
	// Normally, the subscription is opened from a URL such as
	// "awssqs://sqs.us-east-2.amazonaws.com/123456789012/import-jobs".
	var jobs *pubsub.Subscription

	imp := &twinsync.Importer{
		Service:  new(memtwin.Service),
		Buckets:  twinsync.DirBuckets{Root: "/var/lib/twinsync/buckets"},
		Identity: twinsync.StaticIdentity("arn:aws:iam::123456789012:role/importer"),
		Source:   twinsync.BlobSource{},
	}
	component.RunProc(func(l *component.L) {
		l.Fork("import jobs", twinsync.ImportJobs(jobs, imp))
	})
}
