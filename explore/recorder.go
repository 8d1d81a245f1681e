package explore

// Recorder accumulates the steps of one episode and persists the episode
// whenever an anomalous step is appended. Clean episodes are never written.
type Recorder struct {
	store   *ArtifactStore
	episode *Episode

	// dirty is set when steps were appended after the last save of an
	// already persisted episode.
	dirty    bool
	lastPath string
}

// NewRecorder records into ep and writes through store.
func NewRecorder(store *ArtifactStore, ep *Episode) *Recorder {
	return &Recorder{store: store, episode: ep}
}

// Episode returns the episode being recorded.
func (r *Recorder) Episode() *Episode { return r.episode }

// Append adds step. If the step raised a marker the whole episode so far is
// written. saved reports whether a write happened.
func (r *Recorder) Append(step EpisodeStep) (saved bool, err error) {
	r.episode.Steps = append(r.episode.Steps, step)
	if !step.Obs.HasAnomaly() {
		if r.lastPath != "" {
			r.dirty = true
		}
		return false, nil
	}
	return true, r.persist()
}

// Finalize rewrites a persisted episode that gained clean steps after its
// last anomaly so the artifact holds every executed step.
func (r *Recorder) Finalize() (saved bool, err error) {
	if !r.dirty {
		return false, nil
	}
	return true, r.persist()
}

// LastPath returns the artifact path of the latest save, or "" if the
// episode was never written.
func (r *Recorder) LastPath() string { return r.lastPath }

func (r *Recorder) persist() error {
	path, err := r.store.Save(r.episode.Record())
	if err != nil {
		return err
	}
	r.lastPath = path
	r.dirty = false
	return nil
}
