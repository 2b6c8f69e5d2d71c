// internal/driver/emulated.go
package driver

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/voxtest/fauxmic/internal/harness"
)

// scenarioTemplate runs the capture flow a recording page would: acquire the
// stream, record for a spell, optionally pause and resume, stop, and report
// the observed event order. Placeholders: record ms, pause ms.
const scenarioTemplate = `
new Promise((resolve, reject) => {
	const recordMs = %d;
	const pauseMs = %d;
	navigator.mediaDevices.getUserMedia({ audio: true }).then((stream) => {
		const rec = new MediaRecorder(stream, { mimeType: 'audio/wav' });
		const events = [];
		let finalSize = 0;
		rec.ondataavailable = (e) => {
			events.push(e.type);
			if (e.data.size > 0) finalSize = e.data.size;
		};
		['start', 'pause', 'resume', 'stop'].forEach((t) =>
			rec.addEventListener(t, (e) => {
				events.push(e.type);
				if (t === 'stop') resolve({ events: events, size: finalSize, state: rec.state });
			}));
		rec.start();
		const finish = () => rec.stop();
		if (pauseMs > 0) {
			setTimeout(() => {
				rec.pause();
				setTimeout(() => {
					rec.resume();
					setTimeout(finish, recordMs);
				}, pauseMs);
			}, recordMs);
		} else {
			setTimeout(finish, recordMs);
		}
	}).catch(reject);
})
`

// emulatedWalkthrough runs the capture flow inside the in-process JS
// environment instead of a real browser tab.
func (d *Driver) emulatedWalkthrough(ctx context.Context) (*Result, error) {
	sess := harness.NewSession(harness.Options{
		FixtureBase64:   d.opts.Stub.FixtureBase64,
		FixtureMIME:     d.opts.Stub.FixtureMIME,
		InstallRecorder: d.opts.Stub.InstallRecorder,
		Logger:          d.logger,
	})
	env := harness.NewEnvironment(sess, d.logger)
	if err := env.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start emulated environment: %w", err)
	}
	defer env.Stop()

	script := fmt.Sprintf(scenarioTemplate,
		d.opts.RecordFor.Milliseconds(), d.opts.PauseFor.Milliseconds())
	v, err := env.Eval(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("capture scenario failed: %w", err)
	}

	outcome, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("capture scenario returned %T, want an object", v)
	}
	if state, _ := outcome["state"].(string); state != "inactive" {
		return nil, fmt.Errorf("recorder finished in state %q, want inactive", state)
	}
	if size, _ := outcome["size"].(int64); size == 0 {
		return nil, fmt.Errorf("recorder produced no payload")
	}

	encoded, err := env.Eval(ctx, "window.__fauxmicBlob()")
	if err != nil {
		return nil, err
	}
	blob, err := base64.StdEncoding.DecodeString(encoded.(string))
	if err != nil {
		return nil, fmt.Errorf("failed to decode captured payload: %w", err)
	}
	return &Result{Blob: blob}, nil
}
