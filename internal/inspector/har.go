package inspector

import "net/http"

// HARDocument is a minimal HAR 1.2 document: only the fields a
// transaction-inspection tool actually reads are populated.
type HARDocument struct {
	Log HARLog `json:"log"`
}

type HARLog struct {
	Version string     `json:"version"`
	Creator HARCreator `json:"creator"`
	Entries []HAREntry `json:"entries"`
}

type HARCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type HAREntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         HARRequest  `json:"request"`
	Response        HARResponse `json:"response"`
	Timings         HARTimings  `json:"timings"`
}

type HARRequest struct {
	Method      string     `json:"method"`
	URL         string     `json:"url"`
	HTTPVersion string     `json:"httpVersion"`
	Headers     []HARField `json:"headers"`
}

type HARResponse struct {
	Status      int        `json:"status"`
	HTTPVersion string     `json:"httpVersion"`
	Headers     []HARField `json:"headers"`
	Content     HARContent `json:"content"`
}

type HARContent struct {
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type HARTimings struct {
	Wait  float64 `json:"wait"`
	Total float64 `json:"total"`
}

type HARField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ExportHAR renders the current buffer as a HAR 1.2 document.
func (i *Inspector) ExportHAR(appName, appVersion string) HARDocument {
	txs := i.Snapshot()
	entries := make([]HAREntry, 0, len(txs))
	for _, tx := range txs {
		entries = append(entries, HAREntry{
			StartedDateTime: tx.StartedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			Time:            float64(tx.EndedAt.Sub(tx.StartedAt).Milliseconds()),
			Request: HARRequest{
				Method:      tx.RequestMethod,
				URL:         tx.RequestURL,
				HTTPVersion: "HTTP/1.1",
				Headers:     headerFields(tx.RequestHeaders),
			},
			Response: HARResponse{
				Status:      tx.ResponseStatus,
				HTTPVersion: "HTTP/1.1",
				Headers:     headerFields(tx.ResponseHeaders),
				Content: HARContent{
					Size:     len(tx.ResponseBodySnippet),
					MimeType: "text/event-stream",
					Text:     tx.ResponseBodySnippet,
				},
			},
			Timings: HARTimings{
				Wait:  float64(tx.TTFB.Milliseconds()),
				Total: float64(tx.EndedAt.Sub(tx.StartedAt).Milliseconds()),
			},
		})
	}

	return HARDocument{Log: HARLog{
		Version: "1.2",
		Creator: HARCreator{Name: appName, Version: appVersion},
		Entries: entries,
	}}
}

func headerFields(h http.Header) []HARField {
	fields := make([]HARField, 0, len(h))
	for k, values := range h {
		for _, v := range values {
			fields = append(fields, HARField{Name: k, Value: v})
		}
	}
	return fields
}
