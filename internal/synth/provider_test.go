package synth

import (
	"context"
	"errors"
	"testing"
)

func validVoiceRequest() Request {
	return Request{Text: "hello", Mode: ModeVoice, Voice: "Kore"}
}

func TestRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     Request
		wantErr error
		invalid bool
	}{
		{name: "valid voice", req: validVoiceRequest()},
		{name: "valid dialog", req: Request{
			Text: "A: hi\nB: hey",
			Mode: ModeDialog,
			Speakers: [2]Speaker{
				{Name: "Speaker1", Voice: "Kore"},
				{Name: "Speaker2", Voice: "Puck"},
			},
		}},
		{name: "valid local", req: Request{Text: "hello", Mode: ModeLocal, Rate: 150, Volume: 0.9}},
		{name: "empty text", req: Request{Text: "  \t\n", Mode: ModeVoice, Voice: "Kore"}, wantErr: ErrEmptyInput},
		{name: "missing voice", req: Request{Text: "hi", Mode: ModeVoice}, invalid: true},
		{name: "missing speaker name", req: Request{
			Text: "hi",
			Mode: ModeDialog,
			Speakers: [2]Speaker{
				{Name: "", Voice: "Kore"},
				{Name: "Speaker2", Voice: "Puck"},
			},
		}, invalid: true},
		{name: "missing speaker voice", req: Request{
			Text: "hi",
			Mode: ModeDialog,
			Speakers: [2]Speaker{
				{Name: "Speaker1", Voice: "Kore"},
				{Name: "Speaker2", Voice: ""},
			},
		}, invalid: true},
		{name: "zero rate", req: Request{Text: "hi", Mode: ModeLocal, Rate: 0, Volume: 0.5}, invalid: true},
		{name: "volume too high", req: Request{Text: "hi", Mode: ModeLocal, Rate: 150, Volume: 1.2}, invalid: true},
		{name: "unknown mode", req: Request{Text: "hi", Mode: Mode("telepathy")}, invalid: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			switch {
			case tc.wantErr != nil:
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Validate() error = %v, want %v", err, tc.wantErr)
				}
			case tc.invalid:
				var invalidErr *InvalidParamsError
				if !errors.As(err, &invalidErr) {
					t.Fatalf("Validate() error = %v, want *InvalidParamsError", err)
				}
			default:
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
			}
		})
	}
}

func TestClientDispatchesByMode(t *testing.T) {
	cloud := NewMockProvider()
	local := NewMockProvider()
	c := NewClient(cloud, local)

	if _, err := c.Synthesize(context.Background(), validVoiceRequest()); err != nil {
		t.Fatalf("Synthesize(voice) error = %v", err)
	}
	if _, err := c.Synthesize(context.Background(), Request{Text: "hi", Mode: ModeLocal, Rate: 150, Volume: 0.5}); err != nil {
		t.Fatalf("Synthesize(local) error = %v", err)
	}

	if len(cloud.Calls()) != 1 {
		t.Fatalf("cloud calls = %d, want 1", len(cloud.Calls()))
	}
	if len(local.Calls()) != 1 {
		t.Fatalf("local calls = %d, want 1", len(local.Calls()))
	}
}

func TestClientRejectsBeforeDispatch(t *testing.T) {
	cloud := NewMockProvider()
	c := NewClient(cloud, nil)

	_, err := c.Synthesize(context.Background(), Request{Text: "", Mode: ModeVoice, Voice: "Kore"})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("Synthesize() error = %v, want ErrEmptyInput", err)
	}
	if len(cloud.Calls()) != 0 {
		t.Fatalf("provider should not be invoked for invalid input")
	}
}

func TestClientMissingProvider(t *testing.T) {
	c := NewClient(nil, nil)
	_, err := c.Synthesize(context.Background(), validVoiceRequest())
	if !errors.Is(err, ErrProviderUnreachable) {
		t.Fatalf("Synthesize() error = %v, want ErrProviderUnreachable", err)
	}
}

func TestLocalArgs(t *testing.T) {
	args := localArgs(Request{Text: "hi there", Mode: ModeLocal, Rate: 150, Volume: 0.9}, "en-us", "/tmp/out.wav")
	want := []string{"-s", "150", "-a", "180", "-w", "/tmp/out.wav", "-v", "en-us", "--", "hi there"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}
