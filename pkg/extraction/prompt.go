package extraction

import "fmt"

// extractionPrompt instructs the model to return exactly the JSON keys the
// pipeline consumes. The optional keys feed the derived response-time and
// exam-date fields; the model omits them when the reports do not state them.
const extractionPrompt = `Radiology Report:
%s

Clinical Report (Patient History):
%s

Based on the radiology report and the patient's clinical report, extract and return the following in JSON format:

* Critical Findings: Yes/No
* Incidental Findings: Yes/No
* Mammogram Score: [Numeric Score or Category]
* Follow Up Required: Yes/No
* Assign a patient risk level (based on findings and history): Low, Medium, or High
* Provide a brief 2-3 sentence summary of the patient's medical history based on the patient's clinical report.

Also extract, when the reports state them (omit the key otherwise):

* Time Critical Findings Found: the clock time the critical finding was identified
* Time Critical Findings Reported: the clock time the finding was communicated
* Scan Type: the imaging modality
* Exam Date: the date of the exam
* Radiologist Name: the reporting radiologist
* Critical Findings Text: verbatim text of the critical finding
* Incidental Findings Text: verbatim text of any incidental finding

Return ONLY a JSON object with the keys:
"Critical Findings", "Incidental Findings", "Mammogram Score", "Follow Up Required", "Risk Level", "Summary", and any of the optional keys above.

Do not include commentary or code block formatting.`

// BuildPrompt renders the extraction prompt for one report pair.
func BuildPrompt(radiologyText, clinicalText string) string {
	return fmt.Sprintf(extractionPrompt, radiologyText, clinicalText)
}
