package main

import (
	"regexp"
	"strings"
)

// DiagnosticHint explains a compiler/SDK/NuGet error code found in command
// output and points at the relevant documentation.
type DiagnosticHint struct {
	Code    string `json:"code"`
	Summary string `json:"summary"`
	Link    string `json:"link"`
}

// diagnosticCatalog covers the codes AI callers trip over most often. It is
// a hint layer, not an error-code database; unknown codes simply get no
// hint.
var diagnosticCatalog = map[string]DiagnosticHint{
	"CS0103": {
		Code:    "CS0103",
		Summary: "The name does not exist in the current context - usually a typo or a missing using directive",
		Link:    "https://learn.microsoft.com/dotnet/csharp/misc/cs0103",
	},
	"CS0246": {
		Code:    "CS0246",
		Summary: "Type or namespace not found - missing package reference or using directive",
		Link:    "https://learn.microsoft.com/dotnet/csharp/language-reference/compiler-messages/cs0246",
	},
	"CS1002": {
		Code:    "CS1002",
		Summary: "Semicolon expected",
		Link:    "https://learn.microsoft.com/dotnet/csharp/misc/cs1002",
	},
	"CS5001": {
		Code:    "CS5001",
		Summary: "Program does not contain a static Main method - the project may be a library, or top-level statements are missing",
		Link:    "https://learn.microsoft.com/dotnet/csharp/language-reference/compiler-messages/cs5001",
	},
	"NETSDK1045": {
		Code:    "NETSDK1045",
		Summary: "The installed SDK does not support the requested target framework - install a newer SDK or lower TargetFramework",
		Link:    "https://learn.microsoft.com/dotnet/core/tools/sdk-errors/netsdk1045",
	},
	"NETSDK1004": {
		Code:    "NETSDK1004",
		Summary: "Assets file not found - run a restore before building",
		Link:    "https://learn.microsoft.com/dotnet/core/tools/sdk-errors/",
	},
	"NU1101": {
		Code:    "NU1101",
		Summary: "Package not found in any configured source - check the package id and NuGet.config sources",
		Link:    "https://learn.microsoft.com/nuget/reference/errors-and-warnings/nu1101",
	},
	"NU1102": {
		Code:    "NU1102",
		Summary: "Package found but not in the requested version",
		Link:    "https://learn.microsoft.com/nuget/reference/errors-and-warnings/nu1102",
	},
	"NU1605": {
		Code:    "NU1605",
		Summary: "Package downgrade detected - align the transitive dependency versions",
		Link:    "https://learn.microsoft.com/nuget/reference/errors-and-warnings/nu1605",
	},
	"MSB3202": {
		Code:    "MSB3202",
		Summary: "Project file not found - check the path passed to the command",
		Link:    "https://learn.microsoft.com/visualstudio/msbuild/errors/msb3202",
	},
}

var diagnosticCodePattern = regexp.MustCompile(`\b(?:CS|NETSDK|NU|MSB)\d{4}\b`)

// maxHintsPerResult keeps the hint block from dwarfing the actual output.
const maxHintsPerResult = 5

// extractDiagnosticHints scans command output for known diagnostic codes
// and returns one hint per distinct code, in order of first appearance.
func extractDiagnosticHints(output string) []DiagnosticHint {
	if output == "" {
		return nil
	}

	var hints []DiagnosticHint
	seen := make(map[string]bool)
	for _, code := range diagnosticCodePattern.FindAllString(output, -1) {
		code = strings.ToUpper(code)
		if seen[code] {
			continue
		}
		seen[code] = true
		if hint, ok := diagnosticCatalog[code]; ok {
			hints = append(hints, hint)
			if len(hints) >= maxHintsPerResult {
				break
			}
		}
	}
	return hints
}
