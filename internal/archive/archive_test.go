package archive

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
	"github.com/fpang/aop-fashion-mockup/internal/garment"
	"github.com/fpang/aop-fashion-mockup/internal/store"
	"github.com/fpang/aop-fashion-mockup/internal/studio"
)

type fakeS3 struct {
	keys []string
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.keys = append(f.keys, *in.Key)
	return &s3.PutObjectOutput{}, nil
}

type fakeEvents struct {
	inputs []*eventbridge.PutEventsInput
	out    *eventbridge.PutEventsOutput
}

func (f *fakeEvents) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.out != nil {
		return f.out, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func testResult() studio.MockupResult {
	return studio.MockupResult{
		ID:          "id-1",
		Garment:     garment.Hoodie,
		Flat:        dataurl.New("image/png", []byte("flat")),
		Worn:        dataurl.New("image/jpeg", []byte("worn")),
		Pattern:     dataurl.New("image/png", []byte("pattern")),
		SubjectMode: "without_subject",
		CreatedAt:   time.Unix(1_700_000_000, 0),
	}
}

func TestArchive_AllSinks(t *testing.T) {
	s3c := &fakeS3{}
	records := store.NewMemoryStore()
	events := &fakeEvents{}
	a := New(Config{S3: s3c, Bucket: "bucket", Records: records, Events: events, EventBus: "bus", Model: "m"})

	if !a.Enabled() {
		t.Fatal("Enabled = false with all sinks")
	}
	if err := a.Archive(context.Background(), testResult()); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	wantKeys := []string{"mockups/id-1/flat.png", "mockups/id-1/worn.jpg", "mockups/id-1/pattern.png"}
	if len(s3c.keys) != len(wantKeys) {
		t.Fatalf("uploaded keys = %v", s3c.keys)
	}
	for i, k := range wantKeys {
		if s3c.keys[i] != k {
			t.Errorf("key[%d] = %s, want %s", i, s3c.keys[i], k)
		}
	}

	rec, _ := records.GetRecord(context.Background(), "id-1")
	if rec == nil {
		t.Fatal("record not stored")
	}
	if rec.FlatKey != wantKeys[0] || rec.WornKey != wantKeys[1] || rec.Garment != "Hoodie" || rec.Model != "m" {
		t.Errorf("record = %+v", rec)
	}
	if rec.CreatedAt != 1_700_000_000 {
		t.Errorf("CreatedAt = %d", rec.CreatedAt)
	}

	if len(events.inputs) != 1 {
		t.Fatalf("events = %d, want 1", len(events.inputs))
	}
	entry := events.inputs[0].Entries[0]
	if aws.ToString(entry.DetailType) != EventDetailType || aws.ToString(entry.EventBusName) != "bus" {
		t.Errorf("entry = %+v", entry)
	}
	var detail MockupGenerated
	if err := json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail); err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.MockupID != "id-1" || detail.Bucket != "bucket" || detail.WornKey != wantKeys[1] {
		t.Errorf("detail = %+v", detail)
	}
}

func TestArchive_NoSinks(t *testing.T) {
	a := New(Config{})
	if a.Enabled() {
		t.Error("Enabled = true with no sinks")
	}
	if err := a.Archive(context.Background(), testResult()); err != nil {
		t.Errorf("Archive: %v", err)
	}
}

func TestArchive_UploadFailureSkipsRecord(t *testing.T) {
	want := errors.New("denied")
	records := store.NewMemoryStore()
	a := New(Config{S3: &fakeS3{err: want}, Bucket: "b", Records: records})

	err := a.Archive(context.Background(), testResult())
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want wrapped %v", err, want)
	}
	if rec, _ := records.GetRecord(context.Background(), "id-1"); rec != nil {
		t.Error("record written despite failed upload")
	}
}

func TestArchive_FailedEventEntry(t *testing.T) {
	events := &fakeEvents{out: &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []eventbridgetypes.PutEventsResultEntry{
			{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("boom")},
		},
	}}
	records := store.NewMemoryStore()
	a := New(Config{Records: records, Events: events, EventBus: "bus"})

	if err := a.Archive(context.Background(), testResult()); err == nil {
		t.Fatal("expected error for failed entry")
	}
	if rec, _ := records.GetRecord(context.Background(), "id-1"); rec == nil {
		t.Error("record should still be written when the event fails")
	}
}
