package session

// WriteCSV exposes writeCSV to external test packages. The golden test
// lives outside the package so it can use the shared text asserter,
// which in-package tests cannot import.
var WriteCSV = writeCSV
