package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAddrJSONForm(t *testing.T) {
	a := Addr{Host: "10.0.0.1", Port: 9001}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["10.0.0.1",9001]` {
		t.Errorf("marshal = %s", data)
	}

	var back Addr
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != a {
		t.Errorf("round trip = %+v", back)
	}

	for _, bad := range []string{`["h"]`, `["h",1,2]`, `"h:1"`, `[1,"h"]`} {
		if err := json.Unmarshal([]byte(bad), &back); err == nil {
			t.Errorf("accepted %s", bad)
		}
	}
}

func TestParseAddr(t *testing.T) {
	a, err := ParseAddr("127.0.0.1:8888")
	if err != nil || a.Host != "127.0.0.1" || a.Port != 8888 {
		t.Errorf("ParseAddr = %+v, %v", a, err)
	}
	if _, err := ParseAddr("no-port"); err == nil {
		t.Error("expected error for missing port")
	}
}

func TestPeerRecordAlive(t *testing.T) {
	now := time.Now()
	rec := PeerRecord{LastSeen: now.Add(-29 * time.Second)}
	if !rec.Alive(now, 30*time.Second) {
		t.Error("record inside the timeout should be alive")
	}
	rec.LastSeen = now.Add(-31 * time.Second)
	if rec.Alive(now, 30*time.Second) {
		t.Error("record past the timeout should be dead")
	}
}

func TestTaskTimeoutFallback(t *testing.T) {
	task := Task{}
	if task.Timeout(time.Minute) != time.Minute {
		t.Error("zero timeout should fall back to default")
	}
	task.TimeoutSec = 5
	if task.Timeout(time.Minute) != 5*time.Second {
		t.Error("explicit timeout should win")
	}
}
