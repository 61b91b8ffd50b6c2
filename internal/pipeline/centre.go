package pipeline

// Stage identities of the fixed centre-of-rotation sweep pipeline.
const (
	centreNormalizeModule = "tomopy.prep.normalize"
	centreReconModule     = "tomopy.recon.algorithm"
)

// CentrePipeline returns the four-stage pipeline that reconstructs one slice
// per candidate rotation centre: loader, normalize, minus_log, and recon with
// center swept over spec.
func CentrePipeline(loader Stage, algorithm string, spec SweepSpec) ([]Stage, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	normalize, err := NewStage("normalize", centreNormalizeModule,
		Param{Name: "cutoff", Value: nil},
		Param{Name: "averaging", Value: "mean"},
	)
	if err != nil {
		return nil, err
	}
	minusLog, err := NewStage("minus_log", centreNormalizeModule)
	if err != nil {
		return nil, err
	}
	recon, err := NewStage("recon", centreReconModule,
		Param{Name: "center", Node: spec.Node()},
		Param{Name: "sinogram_order", Value: false},
		Param{Name: "algorithm", Value: algorithm},
		Param{Name: "init_recon", Value: nil},
	)
	if err != nil {
		return nil, err
	}

	return []Stage{loader, normalize, minusLog, recon}, nil
}
