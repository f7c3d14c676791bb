package nsf

// NSF directorate codes. The awards API filters on CFDA numbers, not
// the codes themselves, so both lookup directions are exposed.
const (
	ProgramBiologicalSciences                       = "BIO"
	ProgramComputerAndInformationScienceEngineering = "CISE"
	ProgramEducationAndHumanResources               = "EHR"
	ProgramEngineering                              = "ENG"
	ProgramGeosciences                              = "GEO"
	ProgramIntegrativeActivities                    = "OIA"
	ProgramInternationalScienceAndEngineering       = "OISE"
	ProgramMathematicalAndPhysicalSciences          = "MPS"
	ProgramSocialBehavioralAndEconomicSciences      = "SBE"
	ProgramTechnologyInnovationAndPartnerships      = "TIP"
)

var CFDANumberToProgram = map[string]string{
	"47.041": ProgramEngineering,
	"47.049": ProgramMathematicalAndPhysicalSciences,
	"47.050": ProgramGeosciences,
	"47.070": ProgramComputerAndInformationScienceEngineering,
	"47.074": ProgramBiologicalSciences,
	"47.075": ProgramSocialBehavioralAndEconomicSciences,
	"47.076": ProgramEducationAndHumanResources,
	"47.079": ProgramInternationalScienceAndEngineering,
	"47.083": ProgramIntegrativeActivities,
	"47.084": ProgramTechnologyInnovationAndPartnerships,
}

var ProgramToCFDANumber = func() map[string]string {
	out := make(map[string]string, len(CFDANumberToProgram))
	for number, code := range CFDANumberToProgram {
		out[code] = number
	}
	return out
}()
