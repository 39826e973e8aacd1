package services

// Keyword lists are a first-pass safety heuristic and need clinical review.
// Terms are written in normalized form: lowercase, no apostrophes, words
// separated by single spaces. Crisis sets overlap on purpose.

var lowTerms = []string{
	"hopeless", "hopelessness", "no point", "whats the point", "pointless",
	"give up", "giving up", "gave up", "worthless", "empty inside", "nobody cares",
	"no one cares", "tired of everything", "tired of living", "nothing matters",
	"im a burden", "a burden", "cant do this anymore", "no way out", "trapped",
	"numb", "alone in this", "what is the point",
}

var mediumTerms = []string{
	"cant take it", "cant take this", "cant cope", "cant go on", "falling apart",
	"breaking down", "unbearable", "hurt myself", "hurting myself", "self harm",
	"selfharm", "cutting myself", "cut myself", "want to disappear", "wish i could disappear",
	"wish i was gone", "want it to stop", "make it stop", "cant breathe", "panic attack",
	"hate myself", "cant do this anymore", "no way out", "everyone would be better without me",
	"dont want to be here", "dont want to wake up",
}

var highTerms = []string{
	"suicide", "suicidal", "kill myself", "killing myself", "want to die", "wanna die",
	"wish i was dead", "wish i were dead", "better off dead", "end my life", "ending my life",
	"end it all", "ending it all", "ending it", "end it", "take my life", "take my own life",
	"dont want to live", "dont want to be alive", "no reason to live", "not worth living",
	"want to be dead", "overdose", "od on", "everyone would be better without me",
	"better off without me", "not be here anymore", "hurt myself", "self harm",
	"dont want to be here", "want to be here anymore", "rather be dead", "end things",
	"ending things", "dont want to wake up",
}

// planTerms escalate direct ideation to critical when they co-occur.
var planTerms = []string{
	"tonight", "today", "tomorrow", "this weekend", "right now", "now", "soon",
	"pills", "pill", "rope", "gun", "knife", "bridge", "jump", "noose", "razor",
	"plan", "planned", "ready", "note", "goodbye", "said goodbye", "wrote a letter",
	"bottle", "overdose", "stockpiled", "saved up", "i have a plan", "have a plan to",
	"this is goodbye", "last message", "taking all my pills", "took all my pills",
	"took a bunch of pills",
}

// criticalTerms carry both ideation and intent on their own.
var criticalTerms = []string{
	"going to kill myself", "gonna kill myself", "about to kill myself",
	"wrote my suicide note", "suicide note",
}

var crisisInterventionTerms = []string{
	"emergency", "crisis", "help me please", "please help me", "not safe", "unsafe",
}

var strugglingTerms = []string{
	"craving", "cravings", "crave", "urge", "urges", "tempted", "temptation",
	"relapse", "relapsed", "relapsing", "slipped", "slip up", "used again", "drank again",
	"struggling", "struggle", "hard day", "rough day", "bad day", "tough day",
	"cant stop", "withdrawal", "withdrawals", "triggered", "trigger", "want to use",
	"want a drink", "need a drink", "want to drink", "lonely", "anxious", "overwhelmed",
}

var sessionAssistTerms = []string{
	"session", "my session", "peer session", "video call", "call with", "my match",
	"conversation partner", "what should i say", "how do i start", "conversation starter",
	"icebreaker", "ice breaker", "during the call", "after the call", "before the call",
	"talk to my partner", "peer support",
}

var idleTerms = []string{
	"bored", "so bored", "nothing to do", "just checking in", "checking in", "killing time",
}

var greetingTerms = []string{
	"hi", "hey", "hello", "yo", "sup", "good morning", "good evening", "good afternoon",
}

var positiveLexicon = map[string]float64{
	"good": 1, "great": 1.5, "happy": 1.5, "grateful": 2, "gratitude": 1.5,
	"proud": 2, "better": 1, "hopeful": 1.5, "hope": 1, "calm": 1, "peaceful": 1.5,
	"thankful": 1.5, "thanks": 0.5, "love": 1, "excited": 1.5, "strong": 1,
	"progress": 1, "improving": 1, "confident": 1.5, "relieved": 1.5, "glad": 1,
	"wonderful": 1.5, "amazing": 1.5, "motivated": 1.5, "blessed": 1.5, "joy": 1.5,
	"accomplished": 1.5, "milestone": 1, "celebrate": 1.5, "celebrating": 1.5,
	"rested": 1, "okay": 0.5, "fine": 0.5, "nice": 1, "fun": 1,
}

var negativeLexicon = map[string]float64{
	"sad": 1, "angry": 1, "anxious": 1, "anxiety": 1, "depressed": 2, "depression": 1.5,
	"lonely": 1.5, "alone": 1, "scared": 1, "afraid": 1, "fear": 1, "stressed": 1,
	"stress": 1, "awful": 1.5, "terrible": 1.5, "horrible": 1.5, "hate": 1.5,
	"worried": 1, "worry": 1, "tired": 0.5, "exhausted": 1, "frustrated": 1,
	"ashamed": 1.5, "shame": 1.5, "guilty": 1.5, "guilt": 1.5, "relapse": 1.5,
	"relapsed": 2, "craving": 1, "cravings": 1, "hopeless": 2, "worthless": 2,
	"bad": 1, "upset": 1, "hurt": 1, "miserable": 2, "cry": 1, "crying": 1,
	"struggling": 1.5, "failure": 1.5, "failed": 1, "empty": 1, "broken": 1.5,
	"overwhelmed": 1.5, "panic": 1.5, "pain": 1, "numb": 1, "lost": 0.5,
}

type topicCategory struct {
	tag   string
	terms []string
}

var topicTaxonomy = []topicCategory{
	{"alcohol", []string{"alcohol", "drink", "drinks", "drinking", "drank", "drunk", "beer", "wine", "vodka", "whiskey", "liquor", "booze", "hangover", "bar"}},
	{"opioids", []string{"opioid", "opioids", "heroin", "fentanyl", "oxy", "oxycodone", "percocet", "methadone", "suboxone"}},
	{"stimulants", []string{"cocaine", "coke", "meth", "crack", "adderall", "speed", "amphetamine"}},
	{"cannabis", []string{"weed", "cannabis", "marijuana", "pot", "thc", "edibles", "joint"}},
	{"drugs", []string{"drugs", "drug", "using", "high", "pills", "substance", "substances", "dealer"}},
	{"nicotine", []string{"smoking", "smoke", "cigarette", "cigarettes", "vape", "vaping", "nicotine", "tobacco"}},
	{"gambling", []string{"gambling", "gamble", "betting", "bet", "casino", "poker", "slots", "lottery"}},
	{"pornography", []string{"porn", "pornography", "nofap"}},
	{"gaming", []string{"gaming", "video games", "games", "fortnite"}},
	{"social_media", []string{"social media", "instagram", "tiktok", "scrolling", "doomscrolling", "phone addiction"}},
	{"eating", []string{"eating", "binge", "binging", "food", "diet", "purging", "appetite"}},
	{"sleep", []string{"sleep", "sleeping", "insomnia", "nightmares", "cant sleep", "tired", "exhausted"}},
	{"anxiety", []string{"anxiety", "anxious", "panic", "worried", "nervous", "panic attack"}},
	{"depression", []string{"depression", "depressed", "sad", "empty", "numb", "hopeless"}},
	{"stress", []string{"stress", "stressed", "pressure", "overwhelmed", "burnout"}},
	{"loneliness", []string{"lonely", "loneliness", "alone", "isolated", "isolation", "no friends"}},
	{"relationships", []string{"relationship", "boyfriend", "girlfriend", "partner", "husband", "wife", "breakup", "divorce", "dating", "ex"}},
	{"family", []string{"family", "mom", "mother", "dad", "father", "parents", "brother", "sister", "kids", "children", "son", "daughter"}},
	{"work", []string{"work", "job", "boss", "coworker", "career", "fired", "unemployed", "office"}},
	{"school", []string{"school", "college", "university", "exam", "exams", "class", "homework", "teacher"}},
	{"finances", []string{"money", "debt", "rent", "bills", "broke", "finances", "loan"}},
	{"grief", []string{"grief", "grieving", "loss", "died", "passed away", "funeral", "miss him", "miss her"}},
	{"trauma", []string{"trauma", "traumatic", "ptsd", "abuse", "abused", "flashback", "flashbacks", "assault"}},
	{"anger", []string{"anger", "angry", "rage", "furious", "mad"}},
	{"self_esteem", []string{"self esteem", "confidence", "worthless", "hate myself", "ugly", "not good enough"}},
	{"relapse", []string{"relapse", "relapsed", "relapsing", "slipped", "slip", "used again", "drank again"}},
	{"cravings", []string{"craving", "cravings", "urge", "urges", "tempted", "temptation"}},
	{"sobriety", []string{"sober", "sobriety", "clean", "days sober", "milestone", "chip", "recovery", "quit", "quitting", "stop drinking", "stop using"}},
	{"support_groups", []string{"aa", "na", "meeting", "meetings", "sponsor", "12 steps", "twelve steps", "step work", "support group", "smart recovery"}},
	{"therapy", []string{"therapy", "therapist", "counselor", "counselling", "counseling", "psychiatrist", "psychologist", "rehab", "treatment"}},
	{"medication", []string{"medication", "meds", "prescription", "antidepressant", "antidepressants", "naltrexone"}},
	{"exercise", []string{"exercise", "workout", "gym", "running", "walk", "walking", "yoga", "hike"}},
	{"mindfulness", []string{"meditation", "meditate", "mindfulness", "breathing", "breathe", "grounding", "journal", "journaling"}},
	{"spirituality", []string{"god", "pray", "prayer", "faith", "church", "spiritual", "higher power"}},
	{"health", []string{"health", "doctor", "hospital", "sick", "illness", "pain", "liver"}},
}
