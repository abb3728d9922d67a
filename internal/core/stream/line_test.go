package stream

import "testing"

func TestClassify(t *testing.T) {
	testCases := []struct {
		line        string
		wantKind    LineKind
		wantPayload string
	}{
		{"", LineBlank, ""},
		{"   ", LineBlank, ""},
		{": ping", LineComment, ""},
		{":", LineComment, ""},
		{"event: content_block_delta", LineControl, ""},
		{"id: 7", LineControl, ""},
		{"retry: 3000", LineControl, ""},
		{"data: [DONE]", LineDone, ""},
		{"data:[DONE]", LineDone, ""},
		{"data: [DONE]  ", LineDone, ""},
		{"data:", LineBlank, ""},
		{"data: ping", LineControl, ""},
		{"data: PING", LineControl, ""},
		{"data:keep-alive", LineControl, ""},
		{"data: heartbeat ", LineControl, ""},
		{"data: pinged", LineData, "pinged"},
		{`data: {"chunk":"a"}`, LineData, `{"chunk":"a"}`},
		{`data:{"chunk":"a"}`, LineData, `{"chunk":"a"}`},
		{`{"chunk":"a"}`, LineIgnored, ""},
		{"DATA: x", LineIgnored, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			kind, payload := Classify(tc.line)
			if kind != tc.wantKind {
				t.Errorf("Expected kind %s, got %s", tc.wantKind, kind)
			}
			if payload != tc.wantPayload {
				t.Errorf("Expected payload %q, got %q", tc.wantPayload, payload)
			}
		})
	}
}
