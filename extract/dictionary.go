// Package extract provides entity and claim extraction for surgical text,
// both LLM-backed and dictionary-based.
package extract

import (
	"context"
	"strings"

	"github.com/smallnest/medrag"
)

// Curated surgical term sets. Dictionary matching is the offline fallback
// when no NLU service is configured, and covers the common vocabulary of
// surgical teaching material.
var (
	procedureTerms = []string{
		"appendectomy", "cholecystectomy", "colectomy", "gastrectomy",
		"mastectomy", "hysterectomy", "prostatectomy", "nephrectomy",
		"splenectomy", "thyroidectomy", "laparoscopy", "arthroscopy",
		"craniotomy", "thoracotomy", "laparotomy", "cesarean section",
		"hernia repair", "bypass surgery", "angioplasty", "amputation",
		"biopsy", "debridement", "excision", "resection", "anastomosis",
		"tracheostomy", "colostomy", "ileostomy", "catheterization",
	}

	anatomyTerms = []string{
		"appendix", "gallbladder", "colon", "stomach", "intestine",
		"liver", "pancreas", "spleen", "kidney", "bladder", "uterus",
		"prostate", "breast", "thyroid", "heart", "lung", "brain",
		"spine", "bone", "muscle", "tendon", "ligament", "cartilage",
		"artery", "vein", "nerve", "skin", "fascia", "peritoneum",
		"pleura", "pericardium", "esophagus", "trachea", "bronchus",
		"duodenum", "jejunum", "ileum", "cecum", "rectum",
		"cystic duct", "common bile duct", "mesentery", "omentum",
	}

	instrumentTerms = []string{
		"scalpel", "forceps", "scissors", "retractor", "clamp", "needle",
		"suture", "stapler", "cautery", "electrocautery", "laser",
		"laparoscope", "endoscope", "trocar", "dilator", "probe",
		"curette", "drain", "catheter", "speculum", "syringe",
		"aspirator", "irrigator", "grasper", "dissector", "clip applier",
		"veress needle", "harmonic scalpel",
	}

	complicationTerms = []string{
		"bleeding", "hemorrhage", "infection", "abscess", "perforation",
		"leak", "stricture", "adhesion", "hernia", "thrombosis",
		"embolism", "sepsis", "peritonitis", "fistula", "ileus",
		"injury", "laceration", "necrosis", "dehiscence", "seroma",
		"hematoma", "pneumothorax", "bile leak",
	}

	techniqueTerms = []string{
		"laparoscopic", "open", "robotic", "endoscopic", "percutaneous",
		"minimally invasive", "blunt dissection", "sharp dissection",
		"electrocoagulation", "ligation", "cauterization", "insufflation",
		"retraction", "triangulation",
	}

	medicationTerms = []string{
		"antibiotics", "anesthesia", "heparin", "analgesics", "antiemetics",
		"prophylaxis", "anticoagulant", "local anesthetic", "sedation",
	}

	// Procedure word suffixes for terms not in the curated list.
	procedureSuffixes = []string{"ectomy", "otomy", "ostomy", "oscopy", "plasty", "pexy", "rrhaphy"}
)

// DictionaryExtractor extracts surgical entities by matching curated term
// dictionaries and procedure suffix patterns. It never errors and needs no
// network access.
type DictionaryExtractor struct{}

var _ medrag.EntityExtractor = (*DictionaryExtractor)(nil)

// NewDictionaryExtractor creates a DictionaryExtractor.
func NewDictionaryExtractor() *DictionaryExtractor {
	return &DictionaryExtractor{}
}

// ExtractEntities returns entities found in text, keyed by category. Every
// category key is present, with an empty slice when nothing matched.
func (e *DictionaryExtractor) ExtractEntities(ctx context.Context, text string) (map[string][]string, error) {
	lower := strings.ToLower(text)

	entities := map[string][]string{
		medrag.EntityProcedures:    matchTerms(lower, procedureTerms),
		medrag.EntityAnatomy:       matchTerms(lower, anatomyTerms),
		medrag.EntityInstruments:   matchTerms(lower, instrumentTerms),
		medrag.EntityComplications: matchTerms(lower, complicationTerms),
		medrag.EntityTechniques:    matchTerms(lower, techniqueTerms),
		medrag.EntityMedications:   matchTerms(lower, medicationTerms),
	}

	// Pick up procedures the dictionary misses by suffix.
	known := make(map[string]bool, len(entities[medrag.EntityProcedures]))
	for _, p := range entities[medrag.EntityProcedures] {
		known[p] = true
	}
	for _, word := range strings.Fields(lower) {
		word = strings.Trim(word, ".,;:!?()[]\"'")
		if len(word) < 6 || known[word] {
			continue
		}
		for _, suffix := range procedureSuffixes {
			if strings.HasSuffix(word, suffix) {
				entities[medrag.EntityProcedures] = append(entities[medrag.EntityProcedures], word)
				known[word] = true
				break
			}
		}
	}

	return entities, nil
}

func matchTerms(lowerText string, terms []string) []string {
	found := make([]string, 0)
	for _, term := range terms {
		if containsWord(lowerText, term) {
			found = append(found, term)
		}
	}
	return found
}

// containsWord reports whether term occurs in text on word boundaries, so
// "colon" does not match inside "colonoscopy".
func containsWord(text, term string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)

		beforeOK := start == 0 || !isLetter(text[start-1])
		afterOK := end == len(text) || !isLetter(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
