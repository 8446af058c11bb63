package cargo

var ParseHostTriple = parseHostTriple
