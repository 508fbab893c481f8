package trust

// trustedDomains match exactly or as a parent domain: "harvard.edu" accepts
// "harvard.edu" and "med.harvard.edu" but not "notharvard.edu".
var trustedDomains = []string{
	"edu",
	"gov",
	"nhs.net",
	"nhs.uk",
	"harvard.edu",
	"hms.harvard.edu",
	"mayo.edu",
	"mayoclinic.org",
	"clevelandclinic.org",
	"jhmi.edu",
	"stanford.edu",
	"ucsf.edu",
	"kcl.ac.uk",
	"ox.ac.uk",
	"cam.ac.uk",
	"ucl.ac.uk",
	"who.int",
	"nih.gov",
	"cdc.gov",
	"va.gov",
	"bma.org.uk",
	"ama-assn.org",
}

// trustedFragments match anywhere in the domain. They catch national
// academic namespaces such as "unimelb.edu.au" or "uni-heidelberg.ac.at".
var trustedFragments = []string{
	"edu.",
	"ac.uk",
	".ac.",
	"health.gov.",
}

// contentKeywords is the medical vocabulary searched for in the lower-cased
// body of the submitted website.
var contentKeywords = []string{
	"faculty of medicine",
	"school of medicine",
	"medical school",
	"college of medicine",
	"medical center",
	"medical centre",
	"teaching hospital",
	"hospital",
	"clinic",
	"nursing",
	"pharmacy",
	"physician",
	"surgeon",
	"residency program",
	"health sciences",
	"healthcare",
}
