package studio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"testing"

	"google.golang.org/genai"

	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
	"github.com/fpang/aop-fashion-mockup/internal/fusion"
	"github.com/fpang/aop-fashion-mockup/internal/garment"
	"github.com/fpang/aop-fashion-mockup/internal/imageutil"
	"github.com/fpang/aop-fashion-mockup/internal/metrics"
	"github.com/fpang/aop-fashion-mockup/internal/prompt"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeGenerator struct {
	result  *fusion.Result
	err     error
	block   chan struct{} // when set, Generate waits on it
	started chan struct{}
	panics  any // when set, Generate panics with it once
	reqs    []fusion.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req fusion.Request) (*fusion.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	if p := f.panics; p != nil {
		f.panics = nil
		panic(p)
	}
	return f.result, f.err
}

type fakeArchiver struct {
	got []MockupResult
	err error
}

func (f *fakeArchiver) Archive(_ context.Context, r MockupResult) error {
	f.got = append(f.got, r)
	return f.err
}

func img(b string) *dataurl.Image {
	return dataurl.New("image/png", []byte(b))
}

func completeResult() *fusion.Result {
	return &fusion.Result{Flat: img("flat"), Worn: img("worn")}
}

func TestGenerate_Success(t *testing.T) {
	gen := &fakeGenerator{result: completeResult()}
	arch := &fakeArchiver{}
	s := New(gen, WithArchiver(arch))

	res, err := s.Generate(context.Background(), Input{
		Pattern:     img("P"),
		Person:      img("M"),
		Garment:     garment.PoloShirt,
		Description: "urban editorial",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.ID == "" {
		t.Error("result has no id")
	}
	if res.Garment != garment.PoloShirt || res.SubjectMode != "with_subject" || res.Style != "urban editorial" {
		t.Errorf("result = %+v", res)
	}
	if string(res.Flat.Data) != "flat" || string(res.Worn.Data) != "worn" || string(res.Pattern.Data) != "P" {
		t.Error("result images not carried through")
	}
	if res.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	req := gen.reqs[0]
	ws, ok := req.Subject.(prompt.WithSubject)
	if !ok || string(ws.Person.Data) != "M" {
		t.Errorf("subject = %#v, want WithSubject(M)", req.Subject)
	}

	if h := s.History(); len(h) != 1 || h[0].ID != res.ID {
		t.Errorf("History = %+v", h)
	}
	if st := s.State(); st.IsGenerating || st.Error != "" {
		t.Errorf("State after success = %+v", st)
	}
	if len(arch.got) != 1 || arch.got[0].ID != res.ID {
		t.Errorf("archived = %+v", arch.got)
	}
}

func TestGenerate_DefaultsGarmentAndSubject(t *testing.T) {
	gen := &fakeGenerator{result: completeResult()}
	s := New(gen)

	res, err := s.Generate(context.Background(), Input{Pattern: img("P")})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Garment != garment.Default {
		t.Errorf("Garment = %q, want %q", res.Garment, garment.Default)
	}
	if _, ok := gen.reqs[0].Subject.(prompt.WithoutSubject); !ok {
		t.Errorf("subject = %#v, want WithoutSubject", gen.reqs[0].Subject)
	}
}

func TestGenerate_InputErrors(t *testing.T) {
	s := New(&fakeGenerator{result: completeResult()})

	if _, err := s.Generate(context.Background(), Input{}); !errors.Is(err, ErrPatternRequired) {
		t.Errorf("no pattern: err = %v, want ErrPatternRequired", err)
	}
	if _, err := s.Generate(context.Background(), Input{Pattern: img("P"), Garment: "Kimono"}); !errors.Is(err, garment.ErrUnknown) {
		t.Errorf("bad garment: err = %v, want garment.ErrUnknown", err)
	}
}

func TestGenerate_ModelErrorPropagates(t *testing.T) {
	apiErr := &genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}
	arch := &fakeArchiver{}
	s := New(&fakeGenerator{err: apiErr}, WithArchiver(arch))

	_, err := s.Generate(context.Background(), Input{Pattern: img("P"), Garment: garment.Hoodie})

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("err = %T %v, want *GenerationError", err, err)
	}
	if genErr.UserMessage() != FailureMessage {
		t.Errorf("UserMessage = %q", genErr.UserMessage())
	}
	var gotAPI *genai.APIError
	if !errors.As(err, &gotAPI) || gotAPI.Code != 429 {
		t.Errorf("underlying APIError not reachable: %v", err)
	}

	if len(s.History()) != 0 {
		t.Error("failed generation entered history")
	}
	if st := s.State(); st.IsGenerating || st.Error != FailureMessage {
		t.Errorf("State = %+v", st)
	}
	if len(arch.got) != 0 {
		t.Error("failed generation was archived")
	}
}

func TestGenerate_IncompleteResultRejected(t *testing.T) {
	s := New(&fakeGenerator{result: &fusion.Result{Flat: img("flat")}})

	_, err := s.Generate(context.Background(), Input{Pattern: img("P")})
	if !errors.Is(err, ErrIncompleteMockup) {
		t.Fatalf("err = %v, want ErrIncompleteMockup", err)
	}
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Errorf("err = %T, want *GenerationError", err)
	}
	if len(s.History()) != 0 {
		t.Error("incomplete result entered history")
	}
}

func TestGenerate_SingleFlight(t *testing.T) {
	gen := &fakeGenerator{
		result:  completeResult(),
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	s := New(gen)

	done := make(chan error, 1)
	go func() {
		_, err := s.Generate(context.Background(), Input{Pattern: img("P"), Person: img("M")})
		done <- err
	}()
	<-gen.started

	st := s.State()
	if !st.IsGenerating || st.Status != StatusFusing {
		t.Errorf("State during generation = %+v", st)
	}

	if _, err := s.Generate(context.Background(), Input{Pattern: img("P")}); !errors.Is(err, ErrGenerationInFlight) {
		t.Errorf("second Generate err = %v, want ErrGenerationInFlight", err)
	}

	close(gen.block)
	if err := <-done; err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if len(s.History()) != 1 {
		t.Errorf("history len = %d, want 1", len(s.History()))
	}
}

func TestGenerate_ArchiveFailureDoesNotFail(t *testing.T) {
	s := New(&fakeGenerator{result: completeResult()}, WithArchiver(&fakeArchiver{err: errors.New("s3 down")}))

	if _, err := s.Generate(context.Background(), Input{Pattern: img("P")}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(s.History()) != 1 {
		t.Error("result missing from history")
	}
}

func TestHistoryOrderLimitAndGet(t *testing.T) {
	gen := &fakeGenerator{result: completeResult()}
	s := New(gen, WithHistoryLimit(2))
	ctx := context.Background()

	var ids []string
	for range 3 {
		res, err := s.Generate(ctx, Input{Pattern: img("P")})
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		ids = append(ids, res.ID)
	}

	h := s.History()
	if len(h) != 2 {
		t.Fatalf("history len = %d, want 2", len(h))
	}
	if h[0].ID != ids[2] || h[1].ID != ids[1] {
		t.Errorf("History ids = [%s %s], want [%s %s]", h[0].ID, h[1].ID, ids[2], ids[1])
	}

	// Returned slice is a copy.
	h[0].ID = "mutated"
	if s.History()[0].ID != ids[2] {
		t.Error("History returned shared slice")
	}

	if got, err := s.Get(ids[1]); err != nil || got.ID != ids[1] {
		t.Errorf("Get = %v, %v", got.ID, err)
	}
	if _, err := s.Get(ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(dropped) err = %v, want ErrNotFound", err)
	}
}

func TestGenerate_NormalizesUndecodableInputUnchanged(t *testing.T) {
	gen := &fakeGenerator{result: completeResult()}
	s := New(gen, WithMaxInputDimension(64))

	if _, err := s.Generate(context.Background(), Input{Pattern: img("raw")}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(gen.reqs[0].Pattern.Data) != "raw" {
		t.Errorf("pattern = %q, want original bytes", gen.reqs[0].Pattern.Data)
	}
}

func TestGenerate_PanicReleasesGate(t *testing.T) {
	gen := &fakeGenerator{result: completeResult(), panics: "sdk bug"}
	s := New(gen)

	func() {
		defer func() {
			if r := recover(); r != "sdk bug" {
				t.Errorf("recovered %v, want the generator panic", r)
			}
		}()
		s.Generate(context.Background(), Input{Pattern: img("P")})
	}()

	if st := s.State(); st.IsGenerating || st.Error != FailureMessage {
		t.Errorf("State after panic = %+v", st)
	}
	if _, err := s.Generate(context.Background(), Input{Pattern: img("P")}); err != nil {
		t.Fatalf("Generate after panic: %v", err)
	}
	if len(s.History()) != 1 {
		t.Errorf("history len = %d, want 1", len(s.History()))
	}
}

// oversizedPNG declares 12000x12000 pixels in its header and carries no data.
func oversizedPNG() []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], 12000)
	binary.BigEndian.PutUint32(ihdr[4:8], 12000)
	ihdr[8] = 8
	chunk := append([]byte("IHDR"), ihdr...)

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestGenerate_OversizedInputIsInputError(t *testing.T) {
	gen := &fakeGenerator{result: completeResult()}
	s := New(gen, WithMaxInputDimension(2048))

	_, err := s.Generate(context.Background(), Input{Pattern: dataurl.New("image/png", oversizedPNG())})
	if !errors.Is(err, imageutil.ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		t.Error("oversized input reported as a generation failure")
	}
	if len(gen.reqs) != 0 {
		t.Error("model called for an oversized input")
	}
	if st := s.State(); st.IsGenerating || st.Error != "" {
		t.Errorf("State = %+v", st)
	}
}
