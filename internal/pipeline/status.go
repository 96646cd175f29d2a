package pipeline

// Status texts shown to the user.
const (
	StatusDefault = "Select Action"

	StatusGenerating = "Generating Data..."
	StatusGenerated  = "Generated Data"

	StatusUploading              = "Uploading Data..."
	StatusErrorFormatting        = "Error Formatting Data"
	StatusUploadedBlob           = "Uploaded Data (1)"
	StatusErrorUploadingBlob     = "Error Uploading Data"
	StatusUploadedMetadata       = "Uploaded Data (2)"
	StatusErrorUploadingMetadata = "Error Uploading Metadata"
	StatusUploaded               = "Uploaded Data"

	StatusRetrieving      = "Retrieving Model..."
	StatusRetrieved       = "Retrieved Model"
	StatusErrorRetrieving = "Error Retrieving Model"

	StatusPredicting      = "Generating Predictions..."
	StatusErrorPredicting = "Error Generating Predictions"
)

// PredictionStatus returns the status text for a decision label.
func PredictionStatus(l Label) string {
	if l == LabelNone || l == "" {
		return StatusErrorPredicting
	}
	return "Generated Predictions (" + string(l) + ")"
}

// rejection reasons, logged when an action is triggered while locked.
var rejectReasons = map[Capability]string{
	Generate: "Cannot generate data.",
	Upload:   "No data to upload.",
	Retrieve: "No model to retrieve.",
	Predict:  "No model for prediction.",
}
