package domain

// SaveCellsRequest is the body of a batch cell-save request. It always
// carries the full current value of every tracked field, never a diff, so
// resending the identical request is safe.
type SaveCellsRequest struct {
	Cells []Cell `json:"cells"`
}

// SaveGradesRequest is the body of a grading-save request.
type SaveGradesRequest struct {
	Reviews  map[string]GradeDraft `json:"reviews"`
	AutoSave bool                  `json:"auto_save"`
}
