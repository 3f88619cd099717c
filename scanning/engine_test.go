package scanning

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/models"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/utils"
)

type fakeVision struct {
	response string
	err      error
	delay    time.Duration
}

func (f *fakeVision) GenerateText(ctx context.Context, imageData []byte, contentType string, prompt string) (string, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.response, f.err
}

func TestExtract_HappyPath(t *testing.T) {
	client := &fakeVision{response: `{"store_name": "99 Speedmart", "total_amount": 15.30, "category": "Groceries"}`}
	engine := NewEngineWith(client, time.Second, false, nil)

	out, method, err := engine.Extract(context.Background(), "img-1", []byte("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatal(err)
	}
	if method != models.ExtractionMethodVision {
		t.Errorf("method = %s", method)
	}
	if out.StoreName != "99 Speedmart" || out.TotalAmount == nil {
		t.Errorf("out = %+v", out)
	}
}

func TestExtract_TimeoutClassified(t *testing.T) {
	client := &fakeVision{response: "{}", delay: 200 * time.Millisecond}
	engine := NewEngineWith(client, 10*time.Millisecond, false, nil)

	out, _, err := engine.Extract(context.Background(), "img-1", nil, "image/jpeg")
	if out != nil {
		t.Errorf("timed-out extraction must stay null, got %+v", out)
	}
	if !errors.Is(err, utils.ErrExtractionTimeout) {
		t.Errorf("err = %v, want ErrExtractionTimeout", err)
	}
}

func TestExtract_ServiceErrorClassified(t *testing.T) {
	client := &fakeVision{err: errors.New("503 backend overloaded")}
	engine := NewEngineWith(client, time.Second, false, nil)

	out, _, err := engine.Extract(context.Background(), "img-1", nil, "image/jpeg")
	if out != nil {
		t.Errorf("failed extraction must stay null, got %+v", out)
	}
	if !errors.Is(err, utils.ErrExtractionFailed) {
		t.Errorf("err = %v, want ErrExtractionFailed", err)
	}
}

func TestExtract_GarbageResponseClassified(t *testing.T) {
	client := &fakeVision{response: "I could not read this image."}
	engine := NewEngineWith(client, time.Second, false, nil)

	if _, _, err := engine.Extract(context.Background(), "img-1", nil, "image/jpeg"); !errors.Is(err, utils.ErrExtractionFailed) {
		t.Errorf("err = %v, want ErrExtractionFailed", err)
	}
}

func TestExtract_FallbackWhenAllowed(t *testing.T) {
	client := &fakeVision{err: errors.New("backend down")}
	engine := NewEngineWith(client, time.Second, true, nil)

	out, method, err := engine.Extract(context.Background(), "img-1", nil, "image/jpeg")
	if err != nil {
		t.Fatalf("fallback should swallow the failure: %v", err)
	}
	if method != models.ExtractionMethodCanned {
		t.Errorf("method = %s", method)
	}
	if out == nil || out.StoreName == "" || out.TotalAmount == nil {
		t.Errorf("canned payload should be fully populated, got %+v", out)
	}
}

func TestExtract_FallbackIsDeterministicPerImage(t *testing.T) {
	engine := NewEngineWith(&fakeVision{err: errors.New("down")}, time.Second, true, nil)

	first, _, _ := engine.Extract(context.Background(), "img-42", nil, "image/jpeg")
	second, _, _ := engine.Extract(context.Background(), "img-42", nil, "image/jpeg")
	if first.StoreName != second.StoreName || !first.TotalAmount.Equal(*second.TotalAmount) {
		t.Errorf("same image produced different canned payloads: %+v vs %+v", first, second)
	}
}

func TestExtract_NilClientDegrades(t *testing.T) {
	engine := NewEngineWith(nil, time.Second, true, nil)
	out, method, err := engine.Extract(context.Background(), "img-1", nil, "image/jpeg")
	if err != nil || out == nil || method != models.ExtractionMethodCanned {
		t.Errorf("nil client with fallback: out=%v method=%s err=%v", out, method, err)
	}
}
