package extract

import (
	"fmt"

	"docverify/internal/domain"
)

const personalSystemPrompt = `You are an expert data extraction assistant specializing in Indian identity documents (Aadhaar, PAN Card, Voter ID, etc.).

Your task is to extract structured information from OCR text and return ONLY a valid JSON object. Do not include any explanations or markdown formatting.`

const personalUserPrompt = `Extract the following information from this personal identity document OCR text:

Required fields:
- name: Full name of the person (as printed on document)
- dob: Date of birth in DD-MM-YYYY format (extract and convert if needed)
- address: Complete address as printed on document
- mobile: Mobile number (if present on document, otherwise null)

Important instructions:
1. Extract the EXACT name as printed on the document
2. Convert date of birth to DD-MM-YYYY format (e.g., "01-12-1987")
3. If any field is not found or unclear, set it to null
4. Return ONLY a JSON object with these exact field names
5. Do not include any explanations or markdown

OCR Text:
"""
%s
"""

Return ONLY the JSON object:`

// Name and dob feed identity verification, so the educational prompt pushes
// the model to search the whole document and only give up when they are
// genuinely absent.
const educationalSystemPrompt = `You are an expert data extraction assistant specializing in Indian educational documents (marksheets, certificates, degrees).

Your task is to extract structured information from OCR text and return ONLY a valid JSON object. Do not include any explanations or markdown formatting.

CRITICAL: You MUST extract the student's name and date of birth. These are non-negotiable fields used for identity verification. Even if you have to search the entire document, find these fields.`

const educationalUserPrompt = `Extract the following information from this educational document (marksheet/certificate) OCR text:

CRITICAL FIELDS (MUST EXTRACT - DO NOT LEAVE AS NULL):
1. name: Student's full name EXACTLY as printed on document. Search all sections of the document including:
   - Name field at top
   - Roll number row often has name
   - Candidate information section
   - Header information
   MUST EXTRACT - Set to null ONLY if genuinely not present

2. dob: Date of birth in DD-MM-YYYY format. Search for:
   - DOB field
   - Date of Birth field
   - D.O.B or D/O/B
   - Birth date in any date field
   MUST EXTRACT - Set to null ONLY if genuinely not present

OTHER FIELDS:
- document_type: Always "marksheet" for educational documents
- qualification: Class/Standard (normalize to "Class 10" or "Class 12")
- board: Board/Council name (e.g., "CBSE", "ICSE", "State Board", "UP Board")
- stream: Stream if Class 12 (e.g., "Science", "Commerce", "Arts"), null for Class 10
- year_of_passing: Year of passing in YYYY format (e.g., "2017")
- school_name: School/College name
- marks_type: Either "CGPA" or "Percentage"
- marks: The marks value with unit (e.g., "7.4 CGPA" or "85%%")

EXTRACTION RULES:
1. For name: Copy EXACTLY as printed, preserve capitalization. If multiple name fields found, use the one most associated with the student (not examiner/teacher names)
2. For dob: Normalize to DD-MM-YYYY format. If you see "12/01/1987" convert to "12-01-1987". If only the year is visible, search for the full date nearby.
3. If name is NOT on the marksheet, set it to null (but search thoroughly first)
4. If dob is NOT on the marksheet, set it to null (but search thoroughly first)
5. All other fields: set to null if not found
6. Return ONLY valid JSON with these exact field names

OCR Text from Document:
"""
%s
"""

Return ONLY the JSON object (no markdown, no explanations):`

// BuildPrompts returns the system and user prompt for one extraction.
func BuildPrompts(req domain.ExtractionRequest) (string, string, error) {
	switch req.Category {
	case domain.CategoryPersonal:
		return personalSystemPrompt, fmt.Sprintf(personalUserPrompt, req.RawText), nil
	case domain.CategoryEducational:
		return educationalSystemPrompt, fmt.Sprintf(educationalUserPrompt, req.RawText), nil
	}
	return "", "", fmt.Errorf("no prompt for document category %q", req.Category)
}
