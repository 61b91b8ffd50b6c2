package template

const loaderModule = "httomo.data.hdf.loaders"

// Loaders returns the template of the standard tomography loader, which is
// not part of the introspected libraries.
func Loaders() AllTemplates {
	var params Parameters
	params.Set("data_path", ParameterInfo{
		Type:  "str",
		Value: "/entry1/tomo_entry/data/data",
		Desc:  "The data_path parameter is the path to the dataset in the input hdf5/NeXuS file containing the image data",
	})
	params.Set("image_key_path", ParameterInfo{
		Type:  "str",
		Value: "/entry1/tomo_entry/instrument/detector/image_key",
		Desc:  "The image_key_path parameter is the path to the dataset in the input hdf5/NeXuS file containing the so called “image key”.",
	})
	params.Set("rotation_angles", ParameterInfo{
		Type: "dict",
		Value: map[string]any{
			"data_path": "/entry1/tomo_entry/data/rotation_angle",
			"user_defined": map[string]any{
				"start_angle":  0,
				"stop_angle":   180,
				"angles_total": 724,
			},
		},
	})
	params.Set("darks", ParameterInfo{
		Type: "dict",
		Value: map[string]any{
			"file":      "tests/test_data/i12/separate_flats_darks/dark_field.h5",
			"data_path": "/1-NoProcessPlugin-tomo/data",
		},
	})
	params.Set("flats", ParameterInfo{
		Type: "dict",
		Value: map[string]any{
			"file":      "tests/test_data/i12/separate_flats_darks/flat_field.h5",
			"data_path": "/1-NoProcessPlugin-tomo/data",
		},
	})

	return AllTemplates{
		loaderModule: {
			"standard_tomo": {
				MethodName: "standard_tomo",
				ModulePath: loaderModule,
				Parameters: params,
			},
		},
	}
}
