// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

//go:build mage
// +build mage

package main

import "github.com/Azure/iothub-client-go/internal/mage"

// Format formats the code.
func Format() error {
	return mage.Format()
}

// Lint lints the code.
func Lint() error {
	return mage.Lint()
}

// Doc generates documents for the code.
func Doc() error {
	return mage.Doc()
}

// Samples builds the samples.
func Samples() error {
	return mage.Samples()
}

// Test runs the unit tests.
func Test() error {
	return mage.Tester{CoverPkg: mage.CoverPkg}.Run()
}

// TestClean runs the unit tests with no test cache.
func TestClean() error {
	return mage.Tester{Clean: true, CoverPkg: mage.CoverPkg}.Run()
}

// CI runs format, lint, doc, samples, and test.
func CI() error {
	return mage.CI(mage.Tester{CoverPkg: mage.CoverPkg})
}

// CIVerify runs CI and verifies no thrashing occurred.
func CIVerify() error {
	if err := CI(); err != nil {
		return err
	}
	return mage.Verify()
}
