package engine

// Stage is a boundary in a packaging run that gets reported to the user.
type Stage string

const (
	StageGathering   Stage = "gathering"
	StageManifest    Stage = "manifest"
	StageCompressing Stage = "compressing"
	StageCleanup     Stage = "cleanup"
	StageDone        Stage = "done"
)

// Message is the console line printed when the stage starts.
func (s Stage) Message() string {
	switch s {
	case StageGathering:
		return "Gathering source code..."
	case StageManifest:
		return "Updating manifest..."
	case StageCompressing:
		return "Creating tarball..."
	case StageCleanup:
		return "Cleaning up..."
	case StageDone:
		return "Done!"
	default:
		return string(s)
	}
}

func (p *Packager) stage(s Stage) {
	p.logger.Info("stage", "stage", string(s))
	if p.onStage != nil {
		p.onStage(s)
	}
}
