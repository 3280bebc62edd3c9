// Package featureadmin exposes outlier detection to SQL through the
// feature_outliers virtual table module.
//
//	CREATE VIRTUAL TABLE fo USING feature_outliers(identity_id);
//	SELECT identity_id, source_label, reference, distance
//	  FROM fo WHERE identity_id MATCH 'child1' AND threshold = 2.0;
//
// threshold is a hidden column; when omitted the module default applies.
package featureadmin
