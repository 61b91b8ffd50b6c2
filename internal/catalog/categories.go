package catalog

import "slices"

// ModuleMethods lists the methods of one module exposed under a category.
type ModuleMethods struct {
	Module  string
	Methods []string
}

// Category is a named group of methods shown together in the UI.
type Category struct {
	Name    string
	Modules []ModuleMethods
}

// Categories is the fixed method grouping served by the catalog endpoints.
var Categories = []Category{
	{Name: "denoising-artefactsremoval", Modules: []ModuleMethods{
		{Module: "httomolibgpu.misc.corr", Methods: []string{"remove_outlier", "median_filter"}},
		{Module: "httomolibgpu.misc.denoise", Methods: []string{"total_variation_PD", "total_variation_ROF"}},
	}},
	{Name: "image-saving", Modules: []ModuleMethods{
		{Module: "httomolib.misc.images", Methods: []string{"save_to_images"}},
		{Module: "httomolibgpu.misc.rescale", Methods: []string{"rescale_to_int"}},
	}},
	{Name: "segmentation", Modules: []ModuleMethods{
		{Module: "httomolib.misc.segm", Methods: []string{"binary_thresholding"}},
	}},
	{Name: "morphological", Modules: []ModuleMethods{
		{Module: "httomolib.misc.morph", Methods: []string{"data_reducer"}},
		{Module: "httomolibgpu.misc.morph", Methods: []string{"sino_360_to_180", "data_resampler"}},
	}},
	{Name: "normalization", Modules: []ModuleMethods{
		{Module: "httomolibgpu.prep.normalize", Methods: []string{"normalize"}},
	}},
	{Name: "phase-retrieval", Modules: []ModuleMethods{
		{Module: "httomolib.prep.phase", Methods: []string{"paganin_filter"}},
		{Module: "httomolibgpu.prep.phase", Methods: []string{"paganin_filter_savu", "paganin_filter_tomopy"}},
	}},
	{Name: "stripe-removal", Modules: []ModuleMethods{
		{Module: "httomolibgpu.prep.stripe", Methods: []string{
			"remove_stripe_based_sorting",
			"remove_stripe_ti",
			"remove_all_stripe",
			"raven_filter",
		}},
	}},
	{Name: "distortion-correction", Modules: []ModuleMethods{
		{Module: "httomolibgpu.prep.alignment", Methods: []string{"distortion_correction_proj_discorpy"}},
	}},
	{Name: "rotation-center", Modules: []ModuleMethods{
		{Module: "httomolibgpu.recon.rotation", Methods: []string{"find_center_vo", "find_center_360", "find_center_pc"}},
	}},
	{Name: "reconstruction", Modules: []ModuleMethods{
		{Module: "httomolibgpu.recon.algorithm", Methods: []string{"FBP", "LPRec", "SIRT", "CGLS"}},
	}},
}

// CategoryByName returns the category with the given name.
func CategoryByName(name string) (Category, bool) {
	for _, c := range Categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// AllModules merges every category into one module to methods listing,
// keeping first-seen order and dropping duplicates.
func AllModules() []ModuleMethods {
	var out []ModuleMethods
	index := make(map[string]int)
	for _, c := range Categories {
		for _, mm := range c.Modules {
			i, ok := index[mm.Module]
			if !ok {
				index[mm.Module] = len(out)
				out = append(out, ModuleMethods{Module: mm.Module, Methods: append([]string(nil), mm.Methods...)})
				continue
			}
			for _, name := range mm.Methods {
				if !slices.Contains(out[i].Methods, name) {
					out[i].Methods = append(out[i].Methods, name)
				}
			}
		}
	}
	return out
}

