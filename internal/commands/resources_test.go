package commands

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"
)

func TestResourcesFor(t *testing.T) {
	cases := []struct {
		action string
		want   string
	}{
		{ActionCapturePhoto, "{camera}"},
		{ActionCaptureVideo, "{camera,microphone}"},
		{ActionCaptureAudio, "{microphone}"},
		{ActionReadPosition, "{}"},
		{ActionRing, "{}"},
		{ActionVibrate, "{}"},
		{"flash-light", "{}"},
	}
	for _, tc := range cases {
		if got := ResourcesFor(tc.action).String(); got != tc.want {
			t.Errorf("ResourcesFor(%q) = %s, want %s", tc.action, got, tc.want)
		}
	}
}

func TestResourceSetIntersects(t *testing.T) {
	video := ResourcesFor(ActionCaptureVideo)
	if !video.Intersects(ResourcesFor(ActionCaptureAudio)) {
		t.Error("video and audio share the microphone")
	}
	if !ResourcesFor(ActionCapturePhoto).Intersects(video) {
		t.Error("photo and video share the camera")
	}
	if ResourcesFor(ActionCapturePhoto).Intersects(ResourcesFor(ActionCaptureAudio)) {
		t.Error("photo and audio are independent")
	}
	if ResourcesFor(ActionRing).Intersects(video) {
		t.Error("the empty set conflicts with nothing")
	}
}

func TestKnownAction(t *testing.T) {
	if !KnownAction(ActionVibrate) {
		t.Error("vibrate is in the catalog")
	}
	if KnownAction("self-destruct") {
		t.Error("unexpected known action")
	}
}

func TestEstimate(t *testing.T) {
	e := DefaultEstimator()
	cases := []struct {
		name   string
		action string
		params datatypes.JSONMap
		want   time.Duration
	}{
		{"fixed photo", ActionCapturePhoto, nil, 20 * time.Second},
		{"video declared", ActionCaptureVideo, datatypes.JSONMap{"duration": float64(120)}, 2 * time.Minute},
		{"audio int", ActionCaptureAudio, datatypes.JSONMap{"duration": 45}, 45 * time.Second},
		{"audio duration string", ActionCaptureAudio, datatypes.JSONMap{"duration": "90s"}, 90 * time.Second},
		{"video default", ActionCaptureVideo, nil, 30 * time.Second},
		{"stored number", ActionCaptureAudio, datatypes.JSONMap{"duration": json.Number("600")}, 10 * time.Minute},
		{"seconds string", ActionRing, datatypes.JSONMap{"duration": "120"}, 2 * time.Minute},
		{"past max is not shortened", ActionCaptureVideo, datatypes.JSONMap{"duration": float64(7200)}, 2 * time.Hour},
		{"overflowing duration", ActionCaptureVideo, datatypes.JSONMap{"duration": float64(1e12)}, 30 * time.Minute},
		{"negative duration", ActionRing, datatypes.JSONMap{"duration": -3}, 30 * time.Minute},
		{"duration on a fixed action", ActionCapturePhoto, datatypes.JSONMap{"duration": 600}, 20 * time.Second},
		{"unknown", "flash-light", nil, 30 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Estimate(Command{ActionType: tc.action, Parameters: tc.params})
			if got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestExpectedFinishAddsSafetyMargin(t *testing.T) {
	e := DefaultEstimator()
	e.SafetyMargin = 90 * time.Second
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := e.ExpectedFinish(Command{ActionType: ActionVibrate}, now)
	if want := now.Add(5*time.Second + 90*time.Second); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestExpectedFinishNeverBeforeDeclaredEnd(t *testing.T) {
	e := DefaultEstimator()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, v := range []any{float64(1e12), json.Number("1e300"), "NaN", "Inf"} {
		got := e.ExpectedFinish(Command{ActionType: ActionCaptureVideo, Parameters: datatypes.JSONMap{"duration": v}}, now)
		if !got.After(now) {
			t.Errorf("duration %v: expected finish %s is not after %s", v, got, now)
		}
	}
}

func TestDeclaredDuration(t *testing.T) {
	cases := []struct {
		name    string
		v       any
		want    time.Duration
		ok      bool
		invalid bool
	}{
		{"absent", nil, 0, false, false},
		{"json number", json.Number("90"), 90 * time.Second, true, false},
		{"fractional", 1.5, 1500 * time.Millisecond, true, false},
		{"go duration", "3m", 3 * time.Minute, true, false},
		{"seconds string", " 45 ", 45 * time.Second, true, false},
		{"zero", 0, 0, true, true},
		{"garbage", "soon", 0, true, true},
		{"wrong type", true, 0, true, true},
		{"beyond a year", float64(1e12), 0, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := datatypes.JSONMap{}
			if tc.v != nil {
				params["duration"] = tc.v
			}
			d, ok, err := Command{Parameters: params}.DeclaredDuration()
			if ok != tc.ok || d != tc.want {
				t.Fatalf("got %s, %v; want %s, %v", d, ok, tc.want, tc.ok)
			}
			if tc.invalid != errors.Is(err, ErrInvalidDuration) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	e := DefaultEstimator()
	ok := []Command{
		{ActionType: ActionCaptureVideo},
		{ActionType: ActionCaptureVideo, Parameters: datatypes.JSONMap{"duration": float64(1800)}},
		{ActionType: ActionCapturePhoto, Parameters: datatypes.JSONMap{"duration": "whenever"}},
		{ActionType: "flash-light", Parameters: datatypes.JSONMap{"duration": float64(1e12)}},
	}
	for _, c := range ok {
		if err := e.Validate(c); err != nil {
			t.Errorf("%s %v: unexpected error %v", c.ActionType, c.Parameters, err)
		}
	}
	bad := []Command{
		{ActionType: ActionCaptureVideo, Parameters: datatypes.JSONMap{"duration": float64(7200)}},
		{ActionType: ActionCaptureAudio, Parameters: datatypes.JSONMap{"duration": float64(1e12)}},
		{ActionType: ActionRing, Parameters: datatypes.JSONMap{"duration": -3}},
	}
	for _, c := range bad {
		if err := e.Validate(c); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("%s %v: expected ErrInvalidDuration, got %v", c.ActionType, c.Parameters, err)
		}
	}
}

func TestFinished(t *testing.T) {
	for status, want := range map[string]bool{
		StatusPending: false,
		StatusRunning: false,
		StatusDone:    true,
		StatusFailed:  true,
	} {
		if got := (Command{Status: status}).Finished(); got != want {
			t.Errorf("Finished(%s) = %v", status, got)
		}
	}
}
