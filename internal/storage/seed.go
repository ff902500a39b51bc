package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SeedProgress is called after each seeded row.
type SeedProgress func(table string, done, total int)

// SeedData is the reference dataset loaded by Seed.
type SeedData struct {
	MachineTypes  []*MachineType
	Manufacturers []*Manufacturer
	Models        []*MachineModel
	Categories    []*PartCategory
	Symptoms      []*SymptomMapping
	Intents       []*IntentMapping
	Knowledge     []*KnowledgeEntry
	QuickReplies  []*QuickReply
}

// SeedTable names one reference table and its row count.
type SeedTable struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
}

// Tables lists the seeded tables in load order.
func (d *SeedData) Tables() []SeedTable {
	return []SeedTable{
		{"machine_types", len(d.MachineTypes)},
		{"manufacturers", len(d.Manufacturers)},
		{"machine_models", len(d.Models)},
		{"part_categories", len(d.Categories)},
		{"symptom_mappings", len(d.Symptoms)},
		{"intent_mappings", len(d.Intents)},
		{"knowledge_base", len(d.Knowledge)},
		{"quick_replies", len(d.QuickReplies)},
	}
}

// Seed upserts the reference dataset. It is idempotent.
func Seed(ctx context.Context, repos *Repositories, data *SeedData, progress SeedProgress) error {
	if data == nil {
		data = DefaultSeedData()
	}
	if progress == nil {
		progress = func(string, int, int) {}
	}

	steps := []struct {
		table string
		total int
		each  func(i int) error
	}{
		{"machine_types", len(data.MachineTypes), func(i int) error {
			return repos.Taxonomy.UpsertMachineType(ctx, data.MachineTypes[i])
		}},
		{"manufacturers", len(data.Manufacturers), func(i int) error {
			return repos.Taxonomy.UpsertManufacturer(ctx, data.Manufacturers[i])
		}},
		{"machine_models", len(data.Models), func(i int) error {
			return repos.Taxonomy.UpsertModel(ctx, data.Models[i])
		}},
		{"part_categories", len(data.Categories), func(i int) error {
			return repos.Taxonomy.UpsertCategory(ctx, data.Categories[i])
		}},
		{"symptom_mappings", len(data.Symptoms), func(i int) error {
			return repos.Taxonomy.UpsertSymptom(ctx, data.Symptoms[i])
		}},
		{"intent_mappings", len(data.Intents), func(i int) error {
			return repos.Knowledge.UpsertIntent(ctx, data.Intents[i])
		}},
		{"knowledge_base", len(data.Knowledge), func(i int) error {
			return repos.Knowledge.UpsertKnowledge(ctx, data.Knowledge[i])
		}},
		{"quick_replies", len(data.QuickReplies), func(i int) error {
			return repos.Knowledge.UpsertQuickReply(ctx, data.QuickReplies[i])
		}},
	}

	for _, step := range steps {
		for i := 0; i < step.total; i++ {
			if err := step.each(i); err != nil {
				return fmt.Errorf("seed %s: %w", step.table, err)
			}
			progress(step.table, i+1, step.total)
		}
	}
	return nil
}

// SeedDemoLedger loads a small compatibility and purchase history for cat-320d so that
// validation and recommendations have data to work with in development.
func SeedDemoLedger(ctx context.Context, repos *Repositories, now time.Time) error {
	records := []*CompatibilityRecord{
		{MachineModelID: "cat-320d", ProductID: "prod_hyd_pump_320d", CompatibilityLevel: CompatibilityPerfect, ConfidenceScore: 100, IsOriginal: true},
		{MachineModelID: "cat-320d", ProductID: "prod_hyd_pump_alt", CompatibilityLevel: CompatibilityCompatible, ConfidenceScore: 92},
		{MachineModelID: "cat-320d", ProductID: "prod_seal_kit_universal", CompatibilityLevel: CompatibilityCheckSpecs, ConfidenceScore: 70},
		{MachineModelID: "cat-320d", ProductID: "prod_pc200_filter", CompatibilityLevel: CompatibilityNotCompatible, ConfidenceScore: 95},
	}
	for _, rec := range records {
		rec.CreatedAt = now
		if err := repos.Compatibility.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("seed compatibility: %w", err)
		}
	}

	day := now.Truncate(24 * time.Hour)
	orders := []struct {
		customer string
		offset   int
		products []string
	}{
		{"cust-001", 0, []string{"prod_hyd_pump_320d", "prod_seal_kit_universal", "prod_hyd_filter"}},
		{"cust-002", 1, []string{"prod_hyd_pump_320d", "prod_hyd_filter"}},
		{"cust-003", 2, []string{"prod_hyd_pump_320d", "prod_hose_set"}},
		{"cust-004", 3, []string{"prod_hyd_filter", "prod_hose_set"}},
	}
	for _, order := range orders {
		customer := order.customer
		for _, product := range order.products {
			p := &PurchaseRecord{
				CustomerID:     &customer,
				MachineModelID: "cat-320d",
				ProductID:      product,
				PurchasedAt:    day.Add(-time.Duration(order.offset) * 24 * time.Hour).Add(10 * time.Hour),
			}
			if err := repos.Purchases.Append(ctx, p); err != nil {
				return fmt.Errorf("seed purchases: %w", err)
			}
		}
	}
	return nil
}

func intp(v int) *int { return &v }

func strp(v string) *string { return &v }

func meta(v map[string]any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

// DefaultSeedData returns the catalogue's reference taxonomy and assistant knowledge.
func DefaultSeedData() *SeedData {
	return &SeedData{
		MachineTypes: []*MachineType{
			{ID: "excavator", Name: "Excavator", NameLocalized: "Koparka", Icon: "🚜", PopularityScore: 100},
			{ID: "loader", Name: "Loader", NameLocalized: "Ładowarka", Icon: "🏗️", PopularityScore: 90},
			{ID: "crane", Name: "Crane", NameLocalized: "Dźwig", Icon: "🏗️", PopularityScore: 70},
			{ID: "bulldozer", Name: "Bulldozer", NameLocalized: "Spychacz", Icon: "🚜", PopularityScore: 60},
			{ID: "forklift", Name: "Forklift", NameLocalized: "Wózek widłowy", Icon: "🏭", PopularityScore: 85},
			{ID: "compactor", Name: "Compactor", NameLocalized: "Walec", Icon: "🚧", PopularityScore: 50},
			{ID: "grader", Name: "Grader", NameLocalized: "Równiarka", Icon: "🚜", PopularityScore: 40},
		},
		Manufacturers: []*Manufacturer{
			{ID: "cat", Name: "Caterpillar (CAT)", Aliases: []string{"CAT", "Caterpillar"}, MachineTypeID: "excavator", Country: "US", Region: "global", PopularityScore: 100},
			{ID: "komatsu", Name: "Komatsu", MachineTypeID: "excavator", Country: "JP", Region: "global", PopularityScore: 95},
			{ID: "hitachi", Name: "Hitachi", MachineTypeID: "excavator", Country: "JP", Region: "asia", PopularityScore: 85},
			{ID: "jcb", Name: "JCB", MachineTypeID: "excavator", Country: "GB", Region: "europe", PopularityScore: 80},
			{ID: "volvo", Name: "Volvo", MachineTypeID: "excavator", Country: "SE", Region: "europe", PopularityScore: 90},
			{ID: "liebherr", Name: "Liebherr", MachineTypeID: "crane", Country: "DE", Region: "europe", PopularityScore: 95},
			{ID: "terex", Name: "Terex", MachineTypeID: "crane", Country: "US", Region: "global", PopularityScore: 75},
			{ID: "toyota", Name: "Toyota", MachineTypeID: "forklift", Country: "JP", Region: "global", PopularityScore: 100},
			{ID: "linde", Name: "Linde", MachineTypeID: "forklift", Country: "DE", Region: "europe", PopularityScore: 90},
			{ID: "hyster", Name: "Hyster", MachineTypeID: "forklift", Country: "US", Region: "global", PopularityScore: 85},
		},
		Models: []*MachineModel{
			{ID: "cat-320d", Name: "CAT 320D", ManufacturerID: "cat", YearFrom: intp(2005), YearTo: intp(2013), PowerHP: intp(158), WeightKG: intp(21500),
				Specs: map[string]string{"engine": "C6.4 ACERT", "bucket_capacity": "1.2m3"}, PopularityScore: 100},
			{ID: "cat-320dl", Name: "CAT 320DL", ManufacturerID: "cat", YearFrom: intp(2013), YearTo: intp(2019), PowerHP: intp(158), WeightKG: intp(22000),
				Specs: map[string]string{"engine": "C6.4 ACERT", "bucket_capacity": "1.2m3"}, PopularityScore: 95},
			{ID: "cat-325d", Name: "CAT 325D", ManufacturerID: "cat", YearFrom: intp(2011), YearTo: intp(2018), PowerHP: intp(188), WeightKG: intp(25500),
				Specs: map[string]string{"engine": "C7.1 ACERT", "bucket_capacity": "1.5m3"}, PopularityScore: 85},
			{ID: "cat-330d", Name: "CAT 330D", ManufacturerID: "cat", YearFrom: intp(2009), YearTo: intp(2016), PowerHP: intp(268), WeightKG: intp(33000),
				Specs: map[string]string{"engine": "C9 ACERT", "bucket_capacity": "1.9m3"}, PopularityScore: 80},
			{ID: "komatsu-pc200", Name: "Komatsu PC200-8", ManufacturerID: "komatsu", YearFrom: intp(2008), YearTo: intp(2015), PowerHP: intp(155), WeightKG: intp(20500),
				Specs: map[string]string{"engine": "SAA6D107E-1", "bucket_capacity": "1.0m3"}, PopularityScore: 90},
			{ID: "jcb-3cx", Name: "JCB 3CX", ManufacturerID: "jcb", YearFrom: intp(2010), YearTo: intp(2023), PowerHP: intp(109), WeightKG: intp(8500),
				Specs: map[string]string{"engine": "EcoMAX", "bucket_capacity": "0.3m3"}, PopularityScore: 95},
			{ID: "volvo-ec210", Name: "Volvo EC210D", ManufacturerID: "volvo", YearFrom: intp(2014), YearTo: intp(2020), PowerHP: intp(163), WeightKG: intp(21800),
				Specs: map[string]string{"engine": "D5E", "bucket_capacity": "1.1m3"}, PopularityScore: 85},
		},
		Categories: []*PartCategory{
			{ID: "hydraulics", Name: "Hydraulics", NameLocalized: "Hydraulika", Icon: "💧", SortOrder: 1},
			{ID: "engine", Name: "Engine", NameLocalized: "Silnik", Icon: "⚙️", SortOrder: 2},
			{ID: "electrical", Name: "Electrical", NameLocalized: "Elektryka", Icon: "⚡", SortOrder: 3},
			{ID: "brakes", Name: "Brakes", NameLocalized: "Hamulce", Icon: "🛑", SortOrder: 4},
			{ID: "filters", Name: "Filters", NameLocalized: "Filtry", Icon: "🔧", SortOrder: 5},
			{ID: "transmission", Name: "Transmission", NameLocalized: "Przekładnia", Icon: "⚙️", SortOrder: 6},
			{ID: "pumps", Name: "Pumps", NameLocalized: "Pompy", ParentID: strp("hydraulics"), Icon: "💧", SortOrder: 1},
			{ID: "cylinders", Name: "Cylinders", NameLocalized: "Cylindry", ParentID: strp("hydraulics"), Icon: "💧", SortOrder: 2},
			{ID: "seals", Name: "Seals", NameLocalized: "Uszczelki", ParentID: strp("hydraulics"), Icon: "🔧", SortOrder: 3},
			{ID: "hoses", Name: "Hoses", NameLocalized: "Węże", ParentID: strp("hydraulics"), Icon: "💧", SortOrder: 4},
			{ID: "starters", Name: "Starters", NameLocalized: "Rozruszniki", ParentID: strp("engine"), Icon: "⚙️", SortOrder: 1},
			{ID: "cooling", Name: "Cooling System", NameLocalized: "Układ chłodzenia", ParentID: strp("engine"), Icon: "❄️", SortOrder: 2},
			{ID: "fuel", Name: "Fuel System", NameLocalized: "Układ paliwowy", ParentID: strp("engine"), Icon: "⛽", SortOrder: 3},
			{ID: "lighting", Name: "Lighting", NameLocalized: "Oświetlenie", ParentID: strp("electrical"), Icon: "💡", SortOrder: 1},
			{ID: "battery", Name: "Battery", NameLocalized: "Akumulator", ParentID: strp("electrical"), Icon: "🔋", SortOrder: 2},
			{ID: "alternator", Name: "Alternator", NameLocalized: "Alternator", ParentID: strp("electrical"), Icon: "⚡", SortOrder: 3},
		},
		Symptoms: []*SymptomMapping{
			{ID: "sym-001", SymptomText: "Pump not working", SymptomTextPL: "Pompa nie działa", Category: "Hydraulics", Subcategory: "Pumps", ConfidenceScore: 95, Keywords: []string{"pump", "hydraulic", "pressure", "not working"}},
			{ID: "sym-002", SymptomText: "Pump is leaking", SymptomTextPL: "Pompa przecieka", Category: "Hydraulics", Subcategory: "Pumps", ConfidenceScore: 98, Keywords: []string{"pump", "leak", "leaking", "oil"}},
			{ID: "sym-003", SymptomText: "Low hydraulic pressure", SymptomTextPL: "Niskie ciśnienie hydrauliczne", Category: "Hydraulics", Subcategory: "Pumps", ConfidenceScore: 90, Keywords: []string{"pressure", "low", "hydraulic", "weak"}},
			{ID: "sym-004", SymptomText: "Engine won't start", SymptomTextPL: "Silnik nie odpala", Category: "Engine", Subcategory: "Starters", ConfidenceScore: 95, Keywords: []string{"engine", "start", "wont start", "ignition"}},
			{ID: "sym-005", SymptomText: "Engine overheating", SymptomTextPL: "Silnik się przegrzewa", Category: "Engine", Subcategory: "Cooling", ConfidenceScore: 92, Keywords: []string{"overheat", "hot", "temperature", "cooling"}},
			{ID: "sym-006", SymptomText: "No power", SymptomTextPL: "Brak mocy", Category: "Engine", Subcategory: "Fuel System", ConfidenceScore: 85, Keywords: []string{"power", "weak", "slow", "performance"}},
			{ID: "sym-007", SymptomText: "Lights not working", SymptomTextPL: "Światła nie działają", Category: "Electrical", Subcategory: "Lighting", ConfidenceScore: 98, Keywords: []string{"lights", "bulb", "lighting", "dark"}},
			{ID: "sym-008", SymptomText: "Battery dead", SymptomTextPL: "Akumulator rozładowany", Category: "Electrical", Subcategory: "Battery", ConfidenceScore: 95, Keywords: []string{"battery", "dead", "charge", "power"}},
			{ID: "sym-009", SymptomText: "Alternator problem", SymptomTextPL: "Problem z alternatorem", Category: "Electrical", Subcategory: "Alternator", ConfidenceScore: 90, Keywords: []string{"alternator", "charging", "electrical"}},
			{ID: "sym-010", SymptomText: "Cylinder not extending", SymptomTextPL: "Cylinder się nie wysuwa", Category: "Hydraulics", Subcategory: "Cylinders", ConfidenceScore: 92, Keywords: []string{"cylinder", "extend", "hydraulic", "arm"}},
			{ID: "sym-011", SymptomText: "Seal leaking", SymptomTextPL: "Uszczelka przecieka", Category: "Hydraulics", Subcategory: "Seals", ConfidenceScore: 95, Keywords: []string{"seal", "leak", "gasket", "oil"}},
			{ID: "sym-012", SymptomText: "Brake not working", SymptomTextPL: "Hamulec nie działa", Category: "Brakes", Subcategory: "Brake System", ConfidenceScore: 98, Keywords: []string{"brake", "stop", "not working", "safety"}},
			{ID: "sym-013", SymptomText: "Filter clogged", SymptomTextPL: "Filtr zatkany", Category: "Filters", Subcategory: "Oil Filters", ConfidenceScore: 90, Keywords: []string{"filter", "clog", "dirty", "maintenance"}},
			{ID: "sym-014", SymptomText: "Hose burst", SymptomTextPL: "Wąż pękł", Category: "Hydraulics", Subcategory: "Hoses", ConfidenceScore: 95, Keywords: []string{"hose", "burst", "broken", "leak"}},
			{ID: "sym-015", SymptomText: "Transmission slipping", SymptomTextPL: "Przekładnia ślizga się", Category: "Transmission", Subcategory: "Gearbox", ConfidenceScore: 88, Keywords: []string{"transmission", "slip", "gear", "shift"}},
		},
		Intents: []*IntentMapping{
			{ID: "intent-001", IntentName: "SEARCH_GUIDE", Patterns: []string{"need parts", "looking for", "find part", "search for", "where can i find"},
				Keywords: []string{"search", "find", "need", "looking", "part"}, ConfidenceThreshold: 70, Action: "launch_search", Metadata: meta(map[string]any{"auto_fill": true})},
			{ID: "intent-002", IntentName: "TECHNICAL_ISSUE", Patterns: []string{"not working", "broken", "problem with", "issue with", "malfunction"},
				Keywords: []string{"broken", "problem", "issue", "not working", "malfunction", "error"}, ConfidenceThreshold: 75, Action: "diagnose_issue", Metadata: meta(map[string]any{"suggest_parts": true})},
			{ID: "intent-003", IntentName: "COMPATIBILITY_CHECK", Patterns: []string{"does this fit", "is this compatible", "will this work", "can i use"},
				Keywords: []string{"fit", "compatible", "work with", "match", "suitable"}, ConfidenceThreshold: 80, Action: "check_compatibility", Metadata: meta(map[string]any{"validate": true})},
			{ID: "intent-004", IntentName: "PRODUCT_INQUIRY", Patterns: []string{"tell me about", "what is", "specs for", "details about", "information on"},
				Keywords: []string{"specs", "details", "information", "about", "what"}, ConfidenceThreshold: 70, Action: "show_product_info"},
			{ID: "intent-005", IntentName: "PRICE_INQUIRY", Patterns: []string{"how much", "what price", "cost of", "price for"},
				Keywords: []string{"price", "cost", "how much", "expensive"}, ConfidenceThreshold: 85, Action: "show_pricing", Metadata: meta(map[string]any{"show_alternatives": true})},
			{ID: "intent-006", IntentName: "REORDER", Patterns: []string{"order again", "same as last time", "reorder", "buy again"},
				Keywords: []string{"reorder", "again", "same", "previous order"}, ConfidenceThreshold: 80, Action: "show_order_history", Metadata: meta(map[string]any{"quick_reorder": true})},
			{ID: "intent-007", IntentName: "RECOMMENDATION", Patterns: []string{"what do you recommend", "suggest", "advice", "should i buy"},
				Keywords: []string{"recommend", "suggest", "advice", "opinion", "should"}, ConfidenceThreshold: 75, Action: "provide_recommendations", Metadata: meta(map[string]any{"personalized": true})},
			{ID: "intent-008", IntentName: "MAINTENANCE_ADVICE", Patterns: []string{"when to replace", "maintenance schedule", "how often", "service interval"},
				Keywords: []string{"maintenance", "replace", "service", "schedule", "interval"}, ConfidenceThreshold: 75, Action: "show_maintenance_info"},
			{ID: "intent-009", IntentName: "SHIPPING_INQUIRY", Patterns: []string{"delivery time", "shipping cost", "when will it arrive", "how long"},
				Keywords: []string{"shipping", "delivery", "arrive", "time", "cost"}, ConfidenceThreshold: 80, Action: "show_shipping_info"},
			{ID: "intent-010", IntentName: "GENERAL_HELP", Patterns: []string{"help", "i dont know", "confused", "not sure"},
				Keywords: []string{"help", "confused", "dont know", "unsure"}, ConfidenceThreshold: 70, Action: "provide_guidance", Metadata: meta(map[string]any{"show_options": true})},
			{ID: "intent-011", IntentName: "ESCALATE", Patterns: []string{"speak to human", "talk to person", "customer service", "call me"},
				Keywords: []string{"human", "person", "agent", "call", "speak"}, ConfidenceThreshold: 90, Action: "escalate_to_human", Metadata: meta(map[string]any{"priority": "medium"})},
		},
		Knowledge: []*KnowledgeEntry{
			{ID: "kb-001", Category: "compatibility",
				Question:   "How do I know if a part fits my machine?",
				QuestionPL: "Skąd mam wiedzieć, czy część pasuje do mojej maszyny?",
				Answer:     "I can help you check compatibility! Just tell me: 1) Your machine model (e.g., CAT 320D), 2) The part you're interested in. I'll verify if it's 100% compatible.",
				AnswerPL:   "Mogę pomóc sprawdzić kompatybilność! Powiedz mi: 1) Model maszyny (np. CAT 320D), 2) Część, która Cię interesuje. Zweryfikuję, czy jest w 100% kompatybilna.",
				Keywords:   []string{"compatibility", "fit", "match", "work"}, Priority: 10},
			{ID: "kb-002", Category: "search",
				Question:   "How do I find parts for my machine?",
				QuestionPL: "Jak znaleźć części do mojej maszyny?",
				Answer:     "I'll guide you through our smart search! It's easy: 1) Tell me your machine type, 2) Select manufacturer, 3) Choose model, 4) Describe the issue. I'll show you compatible parts.",
				AnswerPL:   "Poprowadzę Cię przez nasze inteligentne wyszukiwanie! To proste: 1) Powiedz mi typ maszyny, 2) Wybierz producenta, 3) Wybierz model, 4) Opisz problem. Pokażę Ci kompatybilne części.",
				Keywords:   []string{"search", "find", "parts", "how"}, Priority: 10},
			{ID: "kb-003", Category: "pricing",
				Question:   "Why are some parts more expensive than others?",
				QuestionPL: "Dlaczego niektóre części są droższe od innych?",
				Answer:     "Great question! We offer 3 types: 1) Original (OEM) - highest quality, full warranty, 2) Compatible - good quality, lower price, 3) Budget - basic functionality. All are tested for compatibility.",
				AnswerPL:   "Świetne pytanie! Oferujemy 3 typy: 1) Oryginalne (OEM) - najwyższa jakość, pełna gwarancja, 2) Kompatybilne - dobra jakość, niższa cena, 3) Budżetowe - podstawowa funkcjonalność. Wszystkie są testowane pod kątem kompatybilności.",
				Keywords:   []string{"price", "expensive", "cost", "why"}, Priority: 8},
			{ID: "kb-004", Category: "shipping",
				Question:   "How long does shipping take?",
				QuestionPL: "Jak długo trwa dostawa?",
				Answer:     "Shipping times: Poland 2-3 days, EU 3-5 days, Worldwide 7-14 days. Express shipping available. Free shipping on orders over €500.",
				AnswerPL:   "Czas dostawy: Polska 2-3 dni, UE 3-5 dni, Świat 7-14 dni. Dostępna ekspresowa wysyłka. Darmowa dostawa przy zamówieniach powyżej 500€.",
				Keywords:   []string{"shipping", "delivery", "time", "how long"}, Priority: 7},
			{ID: "kb-005", Category: "warranty",
				Question:   "What warranty do you offer?",
				QuestionPL: "Jaką gwarancję oferujecie?",
				Answer:     "Warranty: Original parts - 2 years, Compatible parts - 1 year, Budget parts - 6 months. All parts tested before shipping. 30-day return policy if not compatible.",
				AnswerPL:   "Gwarancja: Części oryginalne - 2 lata, Części kompatybilne - 1 rok, Części budżetowe - 6 miesięcy. Wszystkie części testowane przed wysyłką. 30-dniowa polityka zwrotów, jeśli niekompatybilne.",
				Keywords:   []string{"warranty", "guarantee", "return"}, Priority: 8},
			{ID: "kb-006", Category: "maintenance",
				Question:   "When should I replace hydraulic parts?",
				QuestionPL: "Kiedy powinienem wymienić części hydrauliczne?",
				Answer:     "Replace hydraulic parts when: 1) Leaking oil, 2) Loss of pressure, 3) Unusual noises, 4) After 5000 operating hours, 5) Visible wear. Regular maintenance extends life by 40%.",
				AnswerPL:   "Wymień części hydrauliczne gdy: 1) Przeciek oleju, 2) Utrata ciśnienia, 3) Nietypowe dźwięki, 4) Po 5000 godzinach pracy, 5) Widoczne zużycie. Regularna konserwacja wydłuża żywotność o 40%.",
				Keywords:   []string{"maintenance", "replace", "when", "hydraulic"}, Priority: 9},
			{ID: "kb-007", Category: "payment",
				Question:   "What payment methods do you accept?",
				QuestionPL: "Jakie metody płatności akceptujecie?",
				Answer:     "We accept: Credit cards (Visa, Mastercard), Bank transfer, PayPal, Company invoice (for registered businesses). Secure payment processing.",
				AnswerPL:   "Akceptujemy: Karty kredytowe (Visa, Mastercard), Przelew bankowy, PayPal, Faktura firmowa (dla zarejestrowanych firm). Bezpieczne przetwarzanie płatności.",
				Keywords:   []string{"payment", "pay", "method", "invoice"}, Priority: 6},
			{ID: "kb-008", Category: "installation",
				Question:   "Do you provide installation services?",
				QuestionPL: "Czy oferujecie usługi instalacji?",
				Answer:     "We provide: 1) Installation guides (PDF/video), 2) Technical support hotline, 3) Partner mechanic network (available in major cities). Installation not included in price.",
				AnswerPL:   "Oferujemy: 1) Instrukcje instalacji (PDF/wideo), 2) Infolinia wsparcia technicznego, 3) Sieć partnerskich mechaników (dostępna w większych miastach). Instalacja nie jest wliczona w cenę.",
				Keywords:   []string{"installation", "install", "service", "mechanic"}, Priority: 7},
		},
		QuickReplies: []*QuickReply{
			{ID: "qr-001", Intent: "greeting", ReplyText: "Find parts for my machine", ReplyTextPL: "Znajdź części do mojej maszyny", Action: "launch_search", DisplayOrder: 1},
			{ID: "qr-002", Intent: "greeting", ReplyText: "Check compatibility", ReplyTextPL: "Sprawdź kompatybilność", Action: "check_compatibility", DisplayOrder: 2},
			{ID: "qr-003", Intent: "greeting", ReplyText: "Reorder previous parts", ReplyTextPL: "Zamów ponownie poprzednie części", Action: "show_orders", DisplayOrder: 3},
			{ID: "qr-004", Intent: "greeting", ReplyText: "Talk to expert", ReplyTextPL: "Porozmawiaj z ekspertem", Action: "escalate", DisplayOrder: 4},
			{ID: "qr-005", Intent: "search_started", ReplyText: "I know my machine model", ReplyTextPL: "Znam model mojej maszyny", Action: "skip_to_model", DisplayOrder: 1},
			{ID: "qr-006", Intent: "search_started", ReplyText: "I need help choosing", ReplyTextPL: "Potrzebuję pomocy w wyborze", Action: "guided_search", DisplayOrder: 2},
			{ID: "qr-007", Intent: "part_found", ReplyText: "Add to cart", ReplyTextPL: "Dodaj do koszyka", Action: "add_to_cart", DisplayOrder: 1},
			{ID: "qr-008", Intent: "part_found", ReplyText: "Show alternatives", ReplyTextPL: "Pokaż alternatywy", Action: "show_alternatives", DisplayOrder: 2},
			{ID: "qr-009", Intent: "part_found", ReplyText: "Check compatibility", ReplyTextPL: "Sprawdź kompatybilność", Action: "validate_part", DisplayOrder: 3},
		},
	}
}
